// Package scraper walks an account's media feed page by page and reconciles
// every post against the local store.
//
// The Driver is a small state machine:
//
//	Start -> FetchPage -> ProcessPage -> Advance -> FetchPage | Done
//
// and any state may move to Abort. Each page is fetched with the cursor of
// the last post of the previous page. Posts the store has never seen are
// inserted and, unless only metadata is wanted, their media is downloaded.
// Known posts only have their likes count refreshed when it changed. With
// new-only mode the first known post ends the run, since the feed is
// ordered newest first.
//
// Usage:
//
//	driver := scraper.NewDriver(client, st, media, pacer, scraper.Options{
//	    Account: "natgeo",
//	    NewOnly: true,
//	}, log)
//
//	result, err := driver.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Between two page requests the driver waits on its pacer. No wait happens
// after the last page.
package scraper
