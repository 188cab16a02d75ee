// Package profile manages the single profile record kept per identity.
//
// Repository is the record store capability (MemoryRepository here, pgstore
// and mongostore in subpackages). Service adds the rules the application
// relies on:
//
//   - Bootstrap creates the profile on first login. When a concurrent
//     bootstrap wins the insert the record is read once more.
//   - Update trims text, turns whitespace-only text into null, and validates
//     before the repository is called: name and country up to 100
//     characters, bio up to 500, image URLs absolute http(s).
//
// Partial updates use Patch, whose Field values distinguish "no change"
// (zero value) from "clear" (Null) and "assign" (Set):
//
//	p, err := svc.Update(ctx, userID, profile.Patch{
//		Name: profile.Set("Ann"),
//		Bio:  profile.Null[string](),
//	})
package profile
