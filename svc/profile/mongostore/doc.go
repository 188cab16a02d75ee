// Package mongostore implements profile.Repository on MongoDB.
//
// Profiles live in the "profiles" collection with a unique index on user_id.
// Updates use $currentDate so updated_at is always set by the server.
//
//	db, err := mongo.ConnectDatabase(ctx, cfg)
//	repo, err := mongostore.Open(ctx, db)
package mongostore
