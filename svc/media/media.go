package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/dmitrymomot/profilekit/pkg/file"
	"github.com/dmitrymomot/profilekit/pkg/logger"
	"github.com/dmitrymomot/profilekit/pkg/metrics"
)

// DefaultMIMEType is assumed when an asset does not declare its type.
const DefaultMIMEType = "image/jpeg"

const defaultExtension = "jpg"

// Slot is the profile field an image is stored for.
type Slot string

const (
	SlotProfile Slot = "profile"
	SlotBanner  Slot = "banner"
)

// ParseSlot accepts "profile" and "banner".
func ParseSlot(s string) (Slot, error) {
	switch slot := Slot(strings.ToLower(strings.TrimSpace(s))); slot {
	case SlotProfile, SlotBanner:
		return slot, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSlot, s)
}

func (s Slot) String() string { return string(s) }

func (s Slot) valid() bool { return s == SlotProfile || s == SlotBanner }

// Asset is an image picked by the user. Name, MIMEType and Size are
// optional; a Size of zero or less means unknown.
type Asset struct {
	Body     io.Reader
	Name     string
	MIMEType string
	Size     int64
}

// Repository writes images to a file.Storage.
type Repository struct {
	storage file.Storage
	cfg     Config
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(r *Repository) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithClock overrides the time source used for object names.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRepository creates a Repository. Zero config fields fall back to the
// defaults.
func NewRepository(storage file.Storage, cfg Config, opts ...Option) *Repository {
	def := DefaultConfig()
	if cfg.Bucket == "" {
		cfg.Bucket = def.Bucket
	}
	if cfg.MaxImageSizeMB <= 0 {
		cfg.MaxImageSizeMB = def.MaxImageSizeMB
	}
	if len(cfg.SupportedImageTypes) == 0 {
		cfg.SupportedImageTypes = def.SupportedImageTypes
	}

	r := &Repository{
		storage: storage,
		cfg:     cfg,
		logger:  logger.Discard(),
		metrics: metrics.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("media"))
	return r
}

// Config returns the effective configuration.
func (r *Repository) Config() Config { return r.cfg }

// Validate checks the declared size and type of asset without reading it.
func (r *Repository) Validate(asset Asset) error {
	if limit := r.cfg.MaxBytes(); asset.Size > limit {
		return fmt.Errorf("%w: %d bytes, limit is %d MB", ErrTooLarge, asset.Size, r.cfg.MaxImageSizeMB)
	}
	mimeType := mimeTypeOf(asset)
	if !slices.Contains(r.cfg.SupportedImageTypes, mimeType) {
		return fmt.Errorf("%w: %s, supported: %s", ErrUnsupportedType, mimeType, strings.Join(r.cfg.SupportedImageTypes, ", "))
	}
	return nil
}

// Store validates asset and writes it for userID. It returns the public URL
// and the storage path of the new object.
func (r *Repository) Store(ctx context.Context, asset Asset, userID string, slot Slot) (string, string, error) {
	start := r.now()
	size := asset.Size

	u, p, err := r.store(ctx, asset, userID, slot, &size)
	r.metrics.RecordUpload(slot.String(), metrics.Outcome(err, isRejected), size, r.now().Sub(start))
	if err != nil {
		r.logger.WarnContext(ctx, "image upload failed",
			logger.UserID(userID),
			logger.Slot(slot.String()),
			logger.Error(err),
		)
		return "", "", err
	}

	r.logger.InfoContext(ctx, "image stored",
		logger.UserID(userID),
		logger.Slot(slot.String()),
		logger.Path(p),
	)
	return u, p, nil
}

func (r *Repository) store(ctx context.Context, asset Asset, userID string, slot Slot, size *int64) (string, string, error) {
	if !slot.valid() {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	if strings.TrimSpace(userID) == "" || strings.ContainsAny(userID, `/\`) {
		return "", "", fmt.Errorf("%w: invalid user id", file.ErrInvalidPath)
	}
	if asset.Body == nil {
		return "", "", fmt.Errorf("%w: empty body", file.ErrFailedToReadFile)
	}
	if err := r.Validate(asset); err != nil {
		return "", "", err
	}

	data, err := io.ReadAll(io.LimitReader(asset.Body, r.cfg.MaxBytes()+1))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", file.ErrFailedToReadFile, err)
	}
	read := int64(len(data))
	if read > r.cfg.MaxBytes() {
		return "", "", fmt.Errorf("%w: limit is %d MB", ErrTooLarge, r.cfg.MaxImageSizeMB)
	}
	if asset.Size > 0 && read != asset.Size {
		return "", "", fmt.Errorf("%w: declared %d bytes, read %d", ErrSizeMismatch, asset.Size, read)
	}
	*size = read
	body := bytes.NewReader(data)

	p := ObjectPath(userID, slot, asset.Name, r.now())
	f, err := r.storage.Put(ctx, p, body, *size, mimeTypeOf(asset))
	if err != nil {
		return "", "", errors.Join(ErrNetwork, err)
	}
	return f.URL, f.Path, nil
}

// Cleanup removes every object of slot under userID except keepPath.
// Failures are logged and never returned.
func (r *Repository) Cleanup(ctx context.Context, userID string, slot Slot, keepPath string) {
	entries, err := r.storage.List(ctx, userID)
	if err != nil {
		r.metrics.RecordCleanup(slot.String(), 0, 1)
		r.logger.WarnContext(ctx, "could not list images for cleanup",
			logger.UserID(userID),
			logger.Slot(slot.String()),
			logger.Error(err),
		)
		return
	}

	prefix := slot.String() + "-"
	var stale []string
	for _, e := range entries {
		if e.IsDir || !strings.HasPrefix(e.Name, prefix) || e.Path == keepPath {
			continue
		}
		stale = append(stale, e.Path)
	}
	if len(stale) == 0 {
		return
	}

	if err := r.storage.Remove(ctx, stale...); err != nil {
		r.metrics.RecordCleanup(slot.String(), 0, len(stale))
		r.logger.WarnContext(ctx, "could not delete old images",
			logger.UserID(userID),
			logger.Slot(slot.String()),
			logger.Paths(stale),
			logger.Error(err),
		)
		return
	}

	r.metrics.RecordCleanup(slot.String(), len(stale), 0)
	r.logger.DebugContext(ctx, "old images removed",
		logger.UserID(userID),
		logger.Slot(slot.String()),
		logger.Paths(stale),
	)
}

// Upload stores asset and then removes older images of the same slot.
// It returns the public URL of the new object.
func (r *Repository) Upload(ctx context.Context, asset Asset, userID string, slot Slot) (string, error) {
	u, p, err := r.Store(ctx, asset, userID, slot)
	if err != nil {
		return "", err
	}
	r.Cleanup(ctx, userID, slot, p)
	return u, nil
}

// Delete removes the object referenced by a public URL. Deleting an object
// that no longer exists succeeds.
func (r *Repository) Delete(ctx context.Context, imageURL string) error {
	p, err := r.PathFromURL(imageURL)
	if err != nil {
		return err
	}
	if err := r.storage.Remove(ctx, p); err != nil {
		r.logger.WarnContext(ctx, "image deletion failed", logger.Path(p), logger.Error(err))
		return errors.Join(ErrNetwork, err)
	}
	r.logger.InfoContext(ctx, "image deleted", logger.Path(p))
	return nil
}

// PathFromURL returns the storage path following the bucket segment of a
// public URL.
func (r *Repository) PathFromURL(imageURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	segments := strings.Split(u.Path, "/")
	idx := slices.Index(segments, r.cfg.Bucket)
	if idx == -1 || idx == len(segments)-1 {
		return "", ErrInvalidReference
	}

	p, err := file.CleanPath(strings.Join(segments[idx+1:], "/"))
	if err != nil || p == "" {
		return "", ErrInvalidReference
	}
	return p, nil
}

// ObjectPath builds the storage path for a new image.
func ObjectPath(userID string, slot Slot, name string, at time.Time) string {
	ext := file.Extension(name)
	if ext == "" {
		ext = defaultExtension
	}
	return fmt.Sprintf("%s/%s-%d.%s", userID, slot, at.UnixMilli(), ext)
}

func mimeTypeOf(asset Asset) string {
	if t := strings.ToLower(strings.TrimSpace(asset.MIMEType)); t != "" {
		return t
	}
	return DefaultMIMEType
}

func isRejected(err error) bool {
	return errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrInvalidSlot) ||
		errors.Is(err, ErrSizeMismatch) ||
		errors.Is(err, file.ErrInvalidPath)
}
