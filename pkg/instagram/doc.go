// Package instagram fetches and parses an account's public media feed.
//
// Client performs one request per page through a single session (headers,
// cookie jar, optional HTTP or SOCKS proxy) and classifies failures into the
// error types of package errors. Transient failures are handed to a
// ProxyRotator, which either supplies a new proxy or ends the scrape.
//
// Page wraps one JSON response and exposes pure, index-based accessors:
//
//	page, err := client.FetchPage(ctx, cursor)
//	if err != nil {
//	    return err
//	}
//	for i := 0; i < page.PostCount(); i++ {
//	    post, err := page.Post(i)
//	    ...
//	}
//	cursor = page.NextCursor()
package instagram
