// Package pagination lists every item of an offset/limit paginated JSON
// collection.
//
// The listing endpoint returns a JSON array per page. Pages are requested
// sequentially with a fixed delay between them, and the walk ends on the
// first empty, short or non-array page.
//
// Example usage:
//
//	lister, err := pagination.NewLister(httpClient, pagination.DefaultConfig(listingURL))
//	items, err := lister.ListAll(ctx, token)
//
// The lister:
//   - Appends offset and limit to the listing URL, keeping its query
//   - Checks the cancellation token before every page
//   - Dedupes records by canonical URL, first occurrence wins
//   - Re-indexes the survivors densely from 0
//
// Transport failures end the listing with a *ListingError.
package pagination
