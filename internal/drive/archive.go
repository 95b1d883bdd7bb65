package drive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/mholt/archives"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// StreamFolderArchive writes a flat ZIP of the immediate, non-folder children
// of folderID to w and returns the number of entries written.
//
// Content streams are opened one at a time in listing order and copied
// straight into w. If any of them fails the writer is cut off before the
// ZIP central directory is written and the error wraps ErrArchiveAborted;
// whatever already reached w is not a readable archive.
func (s *Service) StreamFolderArchive(ctx context.Context, folderID string, w io.Writer) (int, error) {
	entries, err := s.provider.ListChildren(ctx, folderID)
	if err != nil {
		return 0, fmt.Errorf("list folder %s for archive: %w", folderID, err)
	}

	files := lo.Filter(entries, func(e Entry, _ int) bool {
		if e.Trashed || e.IsFolder() {
			return false
		}
		if isNativeDocument(e.MimeType) {
			log.Debug().Str("file_id", e.ID).Str("mime_type", e.MimeType).Msg("drive: skipping native document in archive")
			return false
		}
		return true
	})

	out := &abortWriter{w: w}
	names := make(map[string]int, len(files))
	infos := make([]archives.FileInfo, 0, len(files))

	for _, e := range files {
		info := entryInfo{entry: e}
		infos = append(infos, archives.FileInfo{
			FileInfo:      info,
			NameInArchive: uniqueName(names, e.Name),
			Open: func() (fs.File, error) {
				rc, err := s.provider.OpenContent(ctx, e.ID)
				if err != nil {
					err = fmt.Errorf("open %s (%s): %w", e.Name, e.ID, err)
					out.abort(err)
					return nil, err
				}
				return &remoteFile{rc: rc, info: info, out: out}, nil
			},
		})
	}

	format := archives.Zip{
		Compression:          zip.Deflate,
		SelectiveCompression: true,
	}
	err = format.Archive(ctx, out, infos)
	if err == nil {
		err = out.err
	}
	if err != nil {
		if cause := out.cause(); cause != nil {
			err = cause
		}
		log.Warn().Err(err).Str("folder_id", folderID).Msg("drive: folder archive aborted")
		return 0, fmt.Errorf("%w: folder %s: %w", ErrArchiveAborted, folderID, err)
	}

	return len(infos), nil
}

// isNativeDocument reports Docs/Sheets/... files, which have no binary
// content to download.
func isNativeDocument(mimeType string) bool {
	return strings.HasPrefix(mimeType, "application/vnd.google-apps.")
}

// uniqueName keeps entry names distinct inside the flat archive:
// "take.wav", "take (1).wav", ...
func uniqueName(used map[string]int, name string) string {
	if name == "" {
		name = "untitled"
	}
	name = strings.ReplaceAll(name, "/", "_")

	n, taken := used[name]
	used[name] = n + 1
	if !taken {
		return name
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, exists := used[candidate]; !exists {
			used[candidate] = 1
			return candidate
		}
		n++
	}
}

var errWriterAborted = errors.New("archive output aborted")

// abortWriter forwards to w until abort is called or a write fails; after
// that every write is rejected.
type abortWriter struct {
	w       io.Writer
	err     error
	failure error
}

func (a *abortWriter) Write(p []byte) (int, error) {
	if a.err != nil {
		return 0, a.err
	}
	n, err := a.w.Write(p)
	if err != nil {
		a.abort(err)
	}
	return n, err
}

func (a *abortWriter) abort(cause error) {
	if a.err != nil {
		return
	}
	a.failure = cause
	a.err = fmt.Errorf("%w: %w", errWriterAborted, cause)
}

func (a *abortWriter) cause() error {
	return a.failure
}

// remoteFile adapts a content stream to fs.File for the archiver. A read
// error other than io.EOF aborts the output immediately so the archiver
// cannot finish the ZIP after a truncated entry.
type remoteFile struct {
	rc   io.ReadCloser
	info entryInfo
	out  *abortWriter
}

func (f *remoteFile) Stat() (fs.FileInfo, error) { return f.info, nil }

func (f *remoteFile) Read(p []byte) (int, error) {
	n, err := f.rc.Read(p)
	if err != nil && err != io.EOF {
		f.out.abort(fmt.Errorf("read %s (%s): %w", f.info.entry.Name, f.info.entry.ID, err))
	}
	return n, err
}

func (f *remoteFile) Close() error { return f.rc.Close() }

type entryInfo struct {
	entry Entry
}

func (i entryInfo) Name() string { return i.entry.Name }
func (i entryInfo) Size() int64 { return i.entry.Size }
func (i entryInfo) Mode() fs.FileMode { return 0o644 }
func (i entryInfo) IsDir() bool { return false }
func (i entryInfo) Sys() any { return nil }
func (i entryInfo) ModTime() time.Time {
	if i.entry.ModifiedTime != nil {
		return *i.entry.ModifiedTime
	}
	return zipEpoch
}

var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)
