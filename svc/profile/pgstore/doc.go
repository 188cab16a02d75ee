// Package pgstore implements profile.Repository on PostgreSQL with pgx.
//
// The schema ships as embedded goose migrations; run Migrate once at startup:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err := pgstore.Migrate(ctx, pool, cfg, log); err != nil {
//		return err
//	}
//	repo := pgstore.New(pool)
//
// user_id carries a unique constraint, so a second Create for the same user
// returns profile.ErrConflict. updated_at is set by a BEFORE UPDATE trigger.
package pgstore
