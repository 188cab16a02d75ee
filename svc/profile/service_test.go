package profile_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/profilekit/pkg/validator"
	"github.com/dmitrymomot/profilekit/svc/profile"
)

func TestService_Bootstrap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("existing profile", func(t *testing.T) {
		t.Parallel()

		existing := &profile.Profile{UserID: "u1", Email: "a@example.com"}
		repo := &MockRepository{}
		repo.On("Get", mock.Anything, "u1").Return(existing, nil)

		p, err := profile.NewService(repo).Bootstrap(ctx, "u1", "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, existing, p)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("creates on first login", func(t *testing.T) {
		t.Parallel()

		created := &profile.Profile{UserID: "u1", Email: "a@example.com"}
		repo := &MockRepository{}
		repo.On("Get", mock.Anything, "u1").Return(nil, profile.ErrNotFound)
		repo.On("Create", mock.Anything, "u1", "a@example.com").Return(created, nil)

		p, err := profile.NewService(repo).Bootstrap(ctx, "u1", " A@Example.com")
		require.NoError(t, err)
		assert.Equal(t, created, p)
		repo.AssertExpectations(t)
	})

	t.Run("concurrent create reads again once", func(t *testing.T) {
		t.Parallel()

		winner := &profile.Profile{UserID: "u1", Email: "a@example.com"}
		repo := &MockRepository{}
		repo.On("Get", mock.Anything, "u1").Return(nil, profile.ErrNotFound).Once()
		repo.On("Create", mock.Anything, "u1", "a@example.com").Return(nil, profile.ErrConflict).Once()
		repo.On("Get", mock.Anything, "u1").Return(winner, nil).Once()

		p, err := profile.NewService(repo).Bootstrap(ctx, "u1", "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, winner, p)
		repo.AssertExpectations(t)
	})

	t.Run("read failure is returned", func(t *testing.T) {
		t.Parallel()

		repo := &MockRepository{}
		repo.On("Get", mock.Anything, "u1").Return(nil, errors.Join(profile.ErrNetwork, errors.New("down")))

		_, err := profile.NewService(repo).Bootstrap(ctx, "u1", "a@example.com")
		assert.ErrorIs(t, err, profile.ErrNetwork)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("with memory repository", func(t *testing.T) {
		t.Parallel()

		svc := profile.NewService(profile.NewMemoryRepository())
		first, err := svc.Bootstrap(ctx, "u1", "a@example.com")
		require.NoError(t, err)
		second, err := svc.Bootstrap(ctx, "u1", "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})
}

func TestService_Update(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	newService := func(t *testing.T) *profile.Service {
		t.Helper()
		repo := profile.NewMemoryRepository()
		_, err := repo.Create(ctx, "u1", "a@example.com")
		require.NoError(t, err)
		return profile.NewService(repo)
	}

	t.Run("bio boundary", func(t *testing.T) {
		t.Parallel()

		svc := newService(t)

		p, err := svc.Update(ctx, "u1", profile.Patch{Bio: profile.Set(strings.Repeat("x", 500))})
		require.NoError(t, err)
		assert.Len(t, *p.Bio, 500)

		_, err = svc.Update(ctx, "u1", profile.Patch{Bio: profile.Set(strings.Repeat("x", 501))})
		require.Error(t, err)
		require.True(t, validator.IsValidationError(err))
		assert.True(t, validator.ExtractValidationErrors(err).Has("bio"))
	})

	t.Run("limits count characters", func(t *testing.T) {
		t.Parallel()

		svc := newService(t)
		_, err := svc.Update(ctx, "u1", profile.Patch{Name: profile.Set(strings.Repeat("ü", 100))})
		require.NoError(t, err)

		_, err = svc.Update(ctx, "u1", profile.Patch{
			Name:    profile.Set(strings.Repeat("n", 101)),
			Country: profile.Set(strings.Repeat("c", 101)),
		})
		errs := validator.ExtractValidationErrors(err)
		assert.ElementsMatch(t, []string{"name", "country"}, errs.Fields())
	})

	t.Run("invalid payload never reaches the repository", func(t *testing.T) {
		t.Parallel()

		repo := &MockRepository{}
		svc := profile.NewService(repo)

		_, err := svc.Update(ctx, "u1", profile.Patch{Bio: profile.Set(strings.Repeat("x", 501))})
		require.Error(t, err)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("image urls must be http", func(t *testing.T) {
		t.Parallel()

		svc := newService(t)
		_, err := svc.Update(ctx, "u1", profile.Patch{
			ProfileImage: profile.Set("ftp://example.com/a.jpg"),
			BannerImage:  profile.Set("not a url"),
			AvatarURL:    profile.Set("https://example.com/avatar.png"),
		})
		errs := validator.ExtractValidationErrors(err)
		assert.ElementsMatch(t, []string{"profile_image", "banner_image"}, errs.Fields())
	})

	t.Run("whitespace becomes null", func(t *testing.T) {
		t.Parallel()

		svc := newService(t)
		_, err := svc.Update(ctx, "u1", profile.Patch{Name: profile.Set("Ann"), Bio: profile.Set("hello")})
		require.NoError(t, err)

		p, err := svc.Update(ctx, "u1", profile.Patch{
			Name: profile.Set("   "),
			Bio:  profile.Set("\n\t "),
		})
		require.NoError(t, err)
		assert.Nil(t, p.Name)
		assert.Nil(t, p.Bio)
	})

	t.Run("text is trimmed", func(t *testing.T) {
		t.Parallel()

		svc := newService(t)
		p, err := svc.Update(ctx, "u1", profile.Patch{
			Name: profile.Set("  Ann   Lee "),
			Bio:  profile.Set("  line one\nline two  "),
		})
		require.NoError(t, err)
		assert.Equal(t, "Ann Lee", *p.Name)
		assert.Equal(t, "line one\nline two", *p.Bio)
	})

	t.Run("missing profile", func(t *testing.T) {
		t.Parallel()

		svc := profile.NewService(profile.NewMemoryRepository())
		_, err := svc.Update(ctx, "nobody", profile.Patch{Name: profile.Set("x")})
		assert.ErrorIs(t, err, profile.ErrNotFound)
	})
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	p := profile.Normalize(profile.Patch{
		Name:         profile.Set(" a\x00b "),
		Country:      profile.Null[string](),
		ProfileImage: profile.Set(" https://x.example/a.png "),
	})

	name, _ := p.Name.Value()
	assert.Equal(t, "ab", name)
	assert.True(t, p.Country.IsNull())
	assert.False(t, p.Bio.IsSet())
	img, _ := p.ProfileImage.Value()
	assert.Equal(t, "https://x.example/a.png", img)
}

func TestService_GetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := profile.NewService(profile.NewMemoryRepository())

	_, err := svc.Get(ctx, "u1")
	assert.ErrorIs(t, err, profile.ErrNotFound)

	_, err = svc.Bootstrap(ctx, "u1", "a@example.com")
	require.NoError(t, err)
	p, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", p.Email)

	require.NoError(t, svc.Delete(ctx, "u1"))
	_, err = svc.Get(ctx, "u1")
	assert.ErrorIs(t, err, profile.ErrNotFound)
}
