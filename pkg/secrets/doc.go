// Package secrets encrypts data at rest with AES-256-GCM.
//
// A single 32-byte master key is expanded with HKDF-SHA256 into one subkey
// per purpose label, so the same master key can protect several kinds of data
// without key reuse. The label is also bound as additional authenticated data.
package secrets
