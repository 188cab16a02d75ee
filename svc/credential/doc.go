// Package credential persists the provider-issued session across process
// restarts.
//
// Three stores implement Store:
//
//   - MemoryStore for tests and short-lived processes.
//   - FileStore, a single AES-256-GCM encrypted file written atomically with
//     mode 0600. The encryption key is derived from a 32-byte master key.
//   - RedisStore, one key per device with a TTL matching the refresh token.
//
// A stored session that cannot be decrypted or decoded is reported as
// ErrCorrupted. LoadOrClear treats that as an empty store and removes it.
package credential
