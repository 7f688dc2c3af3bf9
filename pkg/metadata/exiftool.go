package metadata

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	errs "instadb/pkg/errors"
	"instadb/pkg/logger"
)

// Runner executes an external command and returns its combined output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ExifTool embeds metadata by running the exiftool binary
type ExifTool struct {
	path   string
	run    Runner
	logger logger.Logger
}

// NewExifTool returns an embedder using the exiftool binary at path ("exiftool" when empty)
func NewExifTool(path string, log logger.Logger) *ExifTool {
	if path == "" {
		path = "exiftool"
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &ExifTool{path: path, run: execRunner, logger: log}
}

// WithRunner replaces the command runner
func (e *ExifTool) WithRunner(run Runner) *ExifTool {
	e.run = run
	return e
}

func (e *ExifTool) Embed(ctx context.Context, req Request) error {
	video, err := isVideo(req.Path)
	if err != nil {
		return err
	}

	var argSets [][]string
	if video {
		argSets = [][]string{VideoArgs(req)}
	} else {
		argSets = ImageArgs(req)
	}

	for _, args := range argSets {
		args = append(append([]string{req.Path}, args...), "-overwrite_original", "-q")
		out, err := e.run(ctx, e.path, args...)
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return fmt.Errorf("exiftool not found at %q: %w", e.path, err)
			}
			return fmt.Errorf("exiftool %s: %w: %s", filepath.Base(req.Path), err, strings.TrimSpace(string(out)))
		}
	}

	e.logger.DebugWithFields("metadata embedded", map[string]interface{}{
		"file":  filepath.Base(req.Path),
		"video": video,
	})
	return nil
}

// isVideo sniffs the file and falls back to the extension when the header is unknown
func isVideo(path string) (bool, error) {
	kind, err := filetype.MatchFile(path)
	if err != nil {
		return false, errs.Filesystem("failed to read media file", path, err)
	}
	if kind != filetype.Unknown {
		return kind.MIME.Type == "video", nil
	}
	return strings.EqualFold(filepath.Ext(path), ".mp4"), nil
}

// ImageArgs builds the exiftool invocations for an image. The file
// modification date has to be copied in a second run, after
// DateTimeOriginal has been written.
func ImageArgs(req Request) [][]string {
	title := req.Title()
	args := []string{
		"-XPSubject=" + req.Account,
		"-XPAuthor=" + req.Account,
		"-Artist=" + req.Account,
		"-Credit=" + req.Account,
		"-Copyright=" + req.Account,
		"-Headline=" + title,
		"-Title=" + title,
	}

	for _, tag := range req.Tags {
		args = append(args, "-Keywords+="+tag)
	}

	if caption := Printable(req.Caption); caption != "" {
		args = append(args,
			"-UserComment="+caption,
			"-Description="+caption,
			"-Caption="+caption,
			"-XPComment="+caption,
		)
	}

	if !ValidDate(req.Date) {
		return [][]string{args}
	}

	args = append(args, "-DateTimeOriginal="+req.Date)
	return [][]string{args, {"-FileModifyDate<DateTimeOriginal"}}
}

// VideoArgs builds the exiftool invocation for a video
func VideoArgs(req Request) []string {
	args := []string{
		"-QuickTime:Title=" + req.Title(),
		"-QuickTime:Artist=" + req.Account,
		"-QuickTime:Copyright=" + req.Account,
	}

	if req.Caption != "" {
		comment := req.Caption
		if r := []rune(comment); len(r) > 255 {
			comment = string(r[:255])
		}
		args = append(args,
			"-QuickTime:Description="+req.Caption,
			"-QuickTime:Comment="+comment,
		)
	}

	if len(req.Tags) > 0 {
		joined := strings.Join(req.Tags, ",")
		args = append(args,
			"-QuickTime:Genre="+joined,
			"-QuickTime:Keywords="+joined,
		)
	}

	if ValidDate(req.Date) {
		args = append(args, "-QuickTime:CreateDate="+req.Date)
	}

	return args
}
