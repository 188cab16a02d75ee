// Package file provides object storage backends behind a single Storage
// interface.
//
// S3Storage talks to Amazon S3 or any S3-compatible service through the AWS
// SDK v2. LocalStorage writes to a directory on disk. MemoryStorage keeps
// objects in process and is meant for tests and local development.
//
// Paths are slash-separated keys relative to the storage root. CleanPath
// rejects traversal attempts before any backend is touched. Remove is
// idempotent on every backend: deleting a missing object succeeds.
package file
