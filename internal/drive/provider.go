package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/audiodrive/backend-go/internal/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Provider is the remote file store the tree, path and archive operations
// run against.
type Provider interface {
	// ListChildren returns the non-trashed children of a folder in listing order.
	ListChildren(ctx context.Context, folderID string) ([]Entry, error)
	GetMetadata(ctx context.Context, fileID string) (*Metadata, error)
	// OpenContent returns the raw bytes of a file. Callers must close it.
	OpenContent(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Config carries credentials and limits for the Drive provider.
type Config struct {
	// CredentialsJSON is a service account key. When empty the OAuth client
	// fields and RefreshToken are used instead.
	CredentialsJSON string
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	RefreshToken    string

	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
}

const listFields = "nextPageToken, files(id, name, mimeType, createdTime, modifiedTime, size, trashed)"

type DriveProvider struct {
	srv             *drive.Service
	requestTimeout  time.Duration
	downloadTimeout time.Duration
}

var _ Provider = (*DriveProvider)(nil)

// OAuthConfig builds the OAuth2 client config used both for API calls and for
// minting refresh tokens through the consent flow.
func OAuthConfig(cfg Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveReadonlyScope},
	}
}

func NewDriveProvider(ctx context.Context, cfg Config) (*DriveProvider, error) {
	var client *http.Client
	switch {
	case cfg.CredentialsJSON != "":
		jwtConfig, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account credentials: %w", err)
		}
		client = jwtConfig.Client(ctx)
	case cfg.RefreshToken != "":
		client = OAuthConfig(cfg).Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	default:
		return nil, errors.New("no drive credentials: set a service account or a refresh token")
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}

	return NewDriveProviderFromService(srv, cfg), nil
}

// NewDriveProviderFromService wraps an already configured Drive service.
func NewDriveProviderFromService(srv *drive.Service, cfg Config) *DriveProvider {
	return &DriveProvider{
		srv:             srv,
		requestTimeout:  cfg.RequestTimeout,
		downloadTimeout: cfg.DownloadTimeout,
	}
}

func (p *DriveProvider) ListChildren(ctx context.Context, folderID string) (entries []Entry, err error) {
	defer observe("list", time.Now(), &err)

	ctx, cancel := withTimeout(ctx, p.requestTimeout)
	defer cancel()

	err = p.srv.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))).
		Fields(listFields).
		PageSize(1000).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				if f.Trashed {
					continue
				}
				entries = append(entries, Entry{
					ID:           f.Id,
					Name:         f.Name,
					MimeType:     f.MimeType,
					CreatedTime:  parseTime(f.CreatedTime),
					ModifiedTime: parseTime(f.ModifiedTime),
					Size:         f.Size,
				})
			}
			return nil
		})
	if err != nil {
		return nil, classify(err, "list children of "+folderID)
	}

	return entries, nil
}

func (p *DriveProvider) GetMetadata(ctx context.Context, fileID string) (meta *Metadata, err error) {
	defer observe("get", time.Now(), &err)

	ctx, cancel := withTimeout(ctx, p.requestTimeout)
	defer cancel()

	f, err := p.srv.Files.Get(fileID).
		Fields("id, name, mimeType, parents").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err, "get metadata of "+fileID)
	}

	return &Metadata{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Parents:  f.Parents,
	}, nil
}

func (p *DriveProvider) OpenContent(ctx context.Context, fileID string) (rc io.ReadCloser, err error) {
	defer observe("download", time.Now(), &err)

	// The timeout covers the whole stream, so cancel is handed to the body.
	ctx, cancel := withTimeout(ctx, p.downloadTimeout)

	resp, err := p.srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		cancel()
		return nil, classify(err, "download "+fileID)
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func observe(op string, start time.Time, err *error) {
	metrics.RecordDriveCall(op, *err, time.Since(start))
}

// classify maps API errors onto the package sentinels.
func classify(err error, op string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrProviderUnavailable, err)
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
