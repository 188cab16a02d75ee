// Package media stores profile and banner images in an object store.
//
// A Repository validates an Asset against the configured size limit and
// MIME allow-list, writes it under "{userID}/{slot}-{unixMillis}.{ext}" and
// returns its public URL. Cleanup removes older objects of the same slot:
//
//	url, path, err := repo.Store(ctx, asset, userID, media.SlotProfile)
//	if err != nil {
//		return err
//	}
//	// link url to the profile, then
//	repo.Cleanup(ctx, userID, media.SlotProfile, path)
//
// Upload runs both steps for callers that do not need to link in between.
// Any file.Storage backend works; the public URL of every object must contain
// the bucket name as a path segment so Delete can map URLs back to paths.
package media
