// Package redis connects to Redis with go-redis/v9 and exposes small helpers
// shared by the Redis-backed stores.
package redis
