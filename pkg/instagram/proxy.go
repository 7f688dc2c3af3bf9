package instagram

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
	"instadb/pkg/config"
	"instadb/pkg/logger"
)

// ProxyRotator is consulted after a transient fetch failure.
// It returns the proxy to retry through, or an error to give up with.
type ProxyRotator interface {
	NextProxy(ctx context.Context, cause error) (string, error)
}

// RotatorFunc adapts a function to ProxyRotator
type RotatorFunc func(ctx context.Context, cause error) (string, error)

func (f RotatorFunc) NextProxy(ctx context.Context, cause error) (string, error) {
	return f(ctx, cause)
}

// FailFast never rotates: the first transient failure is fatal
type FailFast struct{}

func (FailFast) NextProxy(ctx context.Context, cause error) (string, error) {
	return "", cause
}

// ListRotator walks a fixed list of proxies once, then defers to Fallback
type ListRotator struct {
	mu       sync.Mutex
	proxies  []string
	next     int
	Fallback ProxyRotator
}

// NewListRotator creates a rotator over proxies
func NewListRotator(proxies []string, fallback ProxyRotator) *ListRotator {
	if fallback == nil {
		fallback = FailFast{}
	}
	return &ListRotator{proxies: proxies, Fallback: fallback}
}

func (r *ListRotator) NextProxy(ctx context.Context, cause error) (string, error) {
	r.mu.Lock()
	if r.next < len(r.proxies) {
		p := r.proxies[r.next]
		r.next++
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()
	return r.Fallback.NextProxy(ctx, cause)
}

// InteractiveRotator asks the operator for a replacement proxy.
// An empty answer or end of input gives up with the original failure.
// A single goroutine owns the input, so a prompt abandoned on cancellation
// leaves its line for the next prompt.
type InteractiveRotator struct {
	in    *bufio.Reader
	out   io.Writer
	start sync.Once
	lines chan promptAnswer
}

// NewInteractiveRotator prompts on out and reads answers from in
func NewInteractiveRotator(in io.Reader, out io.Writer) *InteractiveRotator {
	return &InteractiveRotator{
		in:    bufio.NewReader(in),
		out:   out,
		lines: make(chan promptAnswer),
	}
}

type promptAnswer struct {
	line string
	err  error
}

// readLines feeds lines until the input fails, then closes the channel
func (r *InteractiveRotator) readLines() {
	defer close(r.lines)
	for {
		line, err := r.in.ReadString('\n')
		r.lines <- promptAnswer{line: line, err: err}
		if err != nil {
			return
		}
	}
}

func (r *InteractiveRotator) NextProxy(ctx context.Context, cause error) (string, error) {
	r.start.Do(func() { go r.readLines() })
	fmt.Fprintf(r.out, "\n[!] %v\n", cause)

	for {
		fmt.Fprint(r.out, "[?] New proxy address:port (empty to abort): ")

		var a promptAnswer
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ans, ok := <-r.lines:
			if !ok {
				return "", cause
			}
			a = ans
		}

		line := strings.TrimSpace(a.line)
		if line == "" {
			return "", cause
		}
		if config.ValidProxy(line) {
			return line, nil
		}
		fmt.Fprintf(r.out, "[!] %s is not address:port\n", line)
		if a.err != nil {
			return "", cause
		}
	}
}

// NewRotator picks the rotation strategy for the network configuration.
// Interactive prompting is only offered when stdin is a terminal.
func NewRotator(cfg config.NetworkConfig, stdin *os.File, out io.Writer, log logger.Logger) ProxyRotator {
	var fallback ProxyRotator = FailFast{}
	if cfg.Interactive {
		if stdin != nil && term.IsTerminal(int(stdin.Fd())) {
			fallback = NewInteractiveRotator(stdin, out)
		} else {
			log.Warn("interactive proxy rotation needs a terminal; failing fast instead")
		}
	}

	if len(cfg.Proxies) > 0 {
		return NewListRotator(cfg.Proxies, fallback)
	}
	return fallback
}
