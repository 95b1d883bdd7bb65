package drive

import "errors"

var (
	// ErrProviderUnavailable covers network, auth, quota and timeout failures
	// talking to Drive.
	ErrProviderUnavailable = errors.New("drive provider unavailable")
	ErrNotFound            = errors.New("drive file not found")
	// ErrArchiveAborted means the archive stream was cut short and must not be
	// treated as a valid archive.
	ErrArchiveAborted = errors.New("folder archive aborted")
	ErrParentCycle    = errors.New("parent chain contains a cycle")
	ErrTreeTooDeep    = errors.New("folder tree exceeds maximum depth")
)
