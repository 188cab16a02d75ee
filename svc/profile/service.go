package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/profilekit/pkg/logger"
	"github.com/dmitrymomot/profilekit/pkg/metrics"
	"github.com/dmitrymomot/profilekit/pkg/sanitizer"
	"github.com/dmitrymomot/profilekit/pkg/validator"
)

// Field limits, in characters.
const (
	MaxNameLength    = 100
	MaxCountryLength = 100
	MaxBioLength     = 500
)

// Service adds input cleaning, validation and first-login bootstrap on top
// of a Repository.
type Service struct {
	repo    Repository
	logger  *slog.Logger
	metrics metrics.Recorder
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		logger:  logger.Discard(),
		metrics: metrics.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("profile"))
	return s
}

func (s *Service) Get(ctx context.Context, userID string) (*Profile, error) {
	p, err := s.repo.Get(ctx, userID)
	s.record("get", err)
	return p, err
}

// Bootstrap returns the user's profile, creating it on first login. A
// concurrent bootstrap that wins the create is resolved by reading once more.
func (s *Service) Bootstrap(ctx context.Context, userID, email string) (*Profile, error) {
	p, err := s.repo.Get(ctx, userID)
	if err == nil {
		s.record("bootstrap", nil)
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		s.record("bootstrap", err)
		return nil, err
	}

	p, err = s.repo.Create(ctx, userID, sanitizer.NormalizeEmail(email))
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "profile created", logger.UserID(userID))
	case errors.Is(err, ErrConflict):
		s.logger.DebugContext(ctx, "profile created concurrently, reloading", logger.UserID(userID))
		p, err = s.repo.Get(ctx, userID)
	}
	s.record("bootstrap", err)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update cleans and validates patch, then applies it. Validation failures
// are returned as validator.ValidationErrors without touching the repository.
func (s *Service) Update(ctx context.Context, userID string, patch Patch) (*Profile, error) {
	patch = Normalize(patch)
	if err := Validate(patch); err != nil {
		s.record("update", err)
		return nil, err
	}

	p, err := s.repo.Update(ctx, userID, patch)
	s.record("update", err)
	if err != nil {
		s.logger.WarnContext(ctx, "profile update failed", logger.UserID(userID), logger.Error(err))
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, userID string) error {
	err := s.repo.Delete(ctx, userID)
	s.record("delete", err)
	return err
}

func (s *Service) record(op string, err error) {
	s.metrics.RecordProfileOperation(op, metrics.Outcome(err, func(err error) bool {
		return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || validator.IsValidationError(err)
	}))
}

// Normalize trims text fields. Text that is empty after cleaning becomes a
// null assignment.
func Normalize(p Patch) Patch {
	p.Name = cleanField(p.Name, sanitizer.Line)
	p.Country = cleanField(p.Country, sanitizer.Line)
	p.Bio = cleanField(p.Bio, sanitizer.Text)
	p.AvatarURL = cleanField(p.AvatarURL, strings.TrimSpace)
	p.ProfileImage = cleanField(p.ProfileImage, strings.TrimSpace)
	p.BannerImage = cleanField(p.BannerImage, strings.TrimSpace)
	return p
}

func cleanField(f Field[string], clean func(string) string) Field[string] {
	v, ok := f.Value()
	if !ok {
		return f
	}
	if v = clean(v); v == "" {
		return Null[string]()
	}
	return Set(v)
}

// Validate checks length limits and image URLs of a normalized patch.
func Validate(p Patch) error {
	var rules []validator.Rule
	if v, ok := p.Name.Value(); ok {
		rules = append(rules, validator.MaxRunes("name", v, MaxNameLength))
	}
	if v, ok := p.Country.Value(); ok {
		rules = append(rules, validator.MaxRunes("country", v, MaxCountryLength))
	}
	if v, ok := p.Bio.Value(); ok {
		rules = append(rules, validator.MaxRunes("bio", v, MaxBioLength))
	}
	for _, f := range []struct {
		name  string
		field Field[string]
	}{
		{"avatar_url", p.AvatarURL},
		{"profile_image", p.ProfileImage},
		{"banner_image", p.BannerImage},
	} {
		if v, ok := f.field.Value(); ok {
			rules = append(rules, validator.ValidURLWithScheme(f.name, v, "http", "https"))
		}
	}
	if err := validator.Apply(rules...); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	return nil
}

func wrapNetwork(err error) error {
	return errors.Join(ErrNetwork, err)
}
