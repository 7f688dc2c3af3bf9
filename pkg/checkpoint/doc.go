// Package checkpoint saves and restores the pagination cursor of a scrape.
//
// After every fully processed page the driver records the cursor of the last
// post, so an interrupted run can be continued with --resume instead of
// walking the feed from the top again. A run that reaches the end of the
// feed deletes its checkpoint.
//
// Checkpoints live in output.checkpoint_dir or, when unset, in the platform
// data directory:
//   - Linux: ~/.local/share/instadb/checkpoints/
//   - macOS: ~/Library/Application Support/instadb/checkpoints/
//   - Windows: %APPDATA%/instadb/checkpoints/
//
// Files are written atomically through a temporary file and a rename.
package checkpoint
