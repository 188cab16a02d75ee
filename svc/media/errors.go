package media

import "errors"

var (
	ErrTooLarge         = errors.New("media: image exceeds the size limit")
	ErrUnsupportedType  = errors.New("media: unsupported image type")
	ErrInvalidReference = errors.New("media: url does not reference the bucket")
	ErrNetwork          = errors.New("media: storage request failed")
	ErrInvalidSlot      = errors.New("media: unknown image slot")
	ErrSizeMismatch     = errors.New("media: body size differs from the declared size")
)
