package file

import "errors"

var (
	ErrInvalidPath   = errors.New("invalid path")
	ErrInvalidConfig = errors.New("invalid configuration")

	ErrFileNotFound       = errors.New("file not found")
	ErrFailedToWriteFile  = errors.New("failed to write file")
	ErrFailedToReadFile   = errors.New("failed to read file")
	ErrFailedToDeleteFile = errors.New("failed to delete file")
	ErrFailedToListFiles  = errors.New("failed to list files")

	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrRequestTimeout     = errors.New("request timed out")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
	ErrOperationTimeout   = errors.New("operation timed out")
	ErrOperationCanceled  = errors.New("operation canceled")
	ErrFailedToLoadConfig = errors.New("failed to load AWS config")
)

// IsTransient reports whether err is a storage failure worth retrying or
// surfacing as a connectivity problem rather than a caller mistake.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRequestTimeout) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrOperationTimeout)
}
