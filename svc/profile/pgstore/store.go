package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/profilekit/pkg/pg"
	"github.com/dmitrymomot/profilekit/svc/profile"
)

//go:embed migrations/*.sql
var migrations embed.FS

const columns = `id, user_id, name, email, country, bio, avatar_url, profile_image, banner_image, created_at, updated_at`

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a profile.Repository backed by PostgreSQL.
type Store struct {
	db DBTX
}

var _ profile.Repository = (*Store)(nil)

func New(db DBTX) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded profile schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, migrations, "migrations", cfg, log)
}

func (s *Store) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	row := s.db.QueryRow(ctx, `SELECT `+columns+` FROM profiles WHERE user_id = $1`, userID)
	p, err := scan(row)
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (s *Store) Create(ctx context.Context, userID, email string) (*profile.Profile, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO profiles (id, user_id, email) VALUES ($1, $2, $3) RETURNING `+columns,
		uuid.New(), userID, email,
	)
	p, err := scan(row)
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// Update writes the set fields of patch. updated_at is maintained by the
// profiles_updated_at trigger; the explicit assignment keeps empty patches
// valid SQL.
func (s *Store) Update(ctx context.Context, userID string, patch profile.Patch) (*profile.Profile, error) {
	cols := patch.Columns()
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Name, i+1))
		args = append(args, c.Value)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, userID)

	query := fmt.Sprintf(`UPDATE profiles SET %s WHERE user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), columns)

	p, err := scan(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID); err != nil {
		return mapError(err)
	}
	return nil
}

func scan(row pgx.Row) (*profile.Profile, error) {
	var p profile.Profile
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Email,
		&p.Country,
		&p.Bio,
		&p.AvatarURL,
		&p.ProfileImage,
		&p.BannerImage,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func mapError(err error) error {
	switch {
	case pg.IsNotFoundError(err):
		return profile.ErrNotFound
	case pg.IsDuplicateKeyError(err):
		return errors.Join(profile.ErrConflict, err)
	default:
		return errors.Join(profile.ErrNetwork, err)
	}
}
