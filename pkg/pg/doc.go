// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Connect opens a verified *pgxpool.Pool with retries, Migrate applies
// embedded goose migrations, and the Is*Error helpers classify driver errors
// so repositories can map them onto their own sentinels.
package pg
