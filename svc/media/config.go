package media

// Config holds the storage limits. Bucket names the path segment that
// precedes object paths in public URLs.
type Config struct {
	Bucket              string   `env:"STORAGE_BUCKET" envDefault:"user-images"`
	MaxImageSizeMB      int64    `env:"MAX_IMAGE_SIZE_MB" envDefault:"5"`
	SupportedImageTypes []string `env:"SUPPORTED_IMAGE_TYPES" envDefault:"image/jpeg,image/png,image/webp" envSeparator:","`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		Bucket:              "user-images",
		MaxImageSizeMB:      5,
		SupportedImageTypes: []string{"image/jpeg", "image/png", "image/webp"},
	}
}

// MaxBytes is the size limit in bytes.
func (c Config) MaxBytes() int64 {
	return c.MaxImageSizeMB * 1024 * 1024
}
