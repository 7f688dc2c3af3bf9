package instagram

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"h12.io/socks"
	"instadb/pkg/config"
	"instadb/pkg/errors"
	"instadb/pkg/logger"
	"instadb/pkg/retry"
)

// ClientOptions configures a Client
type ClientOptions struct {
	Account   string
	BaseURL   string
	UserAgent string
	Proxy     string
	Timeout   time.Duration

	// Rotator is consulted on transient failures; nil fails fast
	Rotator ProxyRotator
	// MaxAttempts bounds attempts per page; 0 leaves it to the rotator
	MaxAttempts int
	RetryDelay  time.Duration

	// DiagnosticsFile receives bodies that are not valid JSON
	DiagnosticsFile string
	Page            PageOptions
	Logger          logger.Logger
}

// Client fetches feed pages and media for one account through one session.
// The session is mutated only by the goroutine driving the scrape.
type Client struct {
	httpClient  *http.Client
	headers     map[string]string
	account     string
	baseURL     string
	timeout     time.Duration
	proxy       string
	rotator     ProxyRotator
	maxAttempts int
	retryDelay  time.Duration
	diagnostics string
	pageOpts    PageOptions
	logger      logger.Logger
}

// NewClient creates a client for opts.Account
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Rotator == nil {
		opts.Rotator = FailFast{}
	}

	base := strings.TrimRight(opts.BaseURL, "/")
	c := &Client{
		headers: map[string]string{
			"User-Agent": opts.UserAgent,
			"Origin":     base,
			"Referer":    base + "/",
			"Accept":     "application/json, text/javascript, */*; q=0.01",
		},
		account:     opts.Account,
		baseURL:     base,
		timeout:     opts.Timeout,
		rotator:     opts.Rotator,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		diagnostics: opts.DiagnosticsFile,
		pageOpts:    opts.Page,
		logger:      opts.Logger.WithField("account", opts.Account),
	}
	if c.timeout <= 0 {
		c.timeout = config.MaxTimeout
	}
	if opts.UserAgent == "" {
		delete(c.headers, "User-Agent")
	}

	if err := c.SetProxy(opts.Proxy); err != nil {
		return nil, err
	}
	return c, nil
}

// NewClientFromConfig builds a client from the loaded configuration
func NewClientFromConfig(cfg *config.Config, account string, rotator ProxyRotator, log logger.Logger) (*Client, error) {
	loc, err := cfg.Parse.Location()
	if err != nil {
		return nil, err
	}

	diagnostics := ""
	if cfg.Output.DiagnosticsFile != "" {
		diagnostics = cfg.Output.DiagnosticsFile
		if !filepath.IsAbs(diagnostics) {
			diagnostics = filepath.Join(cfg.OutputDir(account), diagnostics)
		}
	}

	return NewClient(ClientOptions{
		Account:         account,
		BaseURL:         cfg.Instagram.BaseURL,
		UserAgent:       cfg.Instagram.UserAgent,
		Proxy:           cfg.Network.Proxy,
		Timeout:         cfg.Network.Timeout,
		Rotator:         rotator,
		MaxAttempts:     cfg.Network.MaxAttempts,
		RetryDelay:      cfg.Network.RetryDelay,
		DiagnosticsFile: diagnostics,
		Page:            PageOptions{Location: loc},
		Logger:          log,
	})
}

// Account returns the account this client scrapes
func (c *Client) Account() string {
	return c.account
}

// Proxy returns the proxy currently in use, or "" for a direct connection
func (c *Client) Proxy() string {
	return c.proxy
}

// SetProxy switches the session to proxy and drops every session cookie.
// An empty proxy means a direct connection.
func (c *Client) SetProxy(proxy string) error {
	if proxy != "" && !config.ValidProxy(proxy) {
		return errors.New(errors.ErrorTypeNetwork, fmt.Sprintf("%s is not address:port", proxy))
	}

	// No total deadline: timeouts cover connecting, the response headers and
	// each stall while reading a body, so long videos can stream.
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           (&net.Dialer{Timeout: c.timeout}).DialContext,
		TLSHandshakeTimeout:   c.timeout,
		ResponseHeaderTimeout: c.timeout,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
	}

	switch {
	case strings.HasPrefix(proxy, "socks"):
		dial := socks.Dial(socksURI(proxy, c.timeout))
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dial(network, addr)
		}
	case proxy != "":
		u, err := url.Parse("http://" + proxy)
		if err != nil {
			return errors.Wrap(errors.ErrorTypeNetwork, "invalid proxy", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeUnknown, "failed to create cookie jar", err)
	}

	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	c.httpClient = &http.Client{
		Transport: transport,
		Jar:       jar,
	}
	c.proxy = proxy

	if proxy != "" {
		c.logger.InfoWithFields("using proxy", map[string]interface{}{"proxy": proxy})
	}
	return nil
}

func socksURI(proxy string, timeout time.Duration) string {
	if strings.Contains(proxy, "timeout=") {
		return proxy
	}
	sep := "?"
	if strings.Contains(proxy, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%stimeout=%s", proxy, sep, timeout)
}

// FetchPage fetches one page of the feed, continuing after cursor when set.
// Transient failures go through the rotator; not_found and malformed are final.
func (c *Client) FetchPage(ctx context.Context, cursor string) (*Page, error) {
	pageURL := MediaURL(c.baseURL, c.account, cursor)

	body, err := retry.DoWithResult(ctx, func(ctx context.Context) ([]byte, error) {
		return c.fetchJSON(ctx, pageURL)
	}, retry.Config{
		MaxAttempts: c.maxAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: c.retryDelay},
		RetryIf: func(err error) bool {
			return errors.IsRetryable(errors.TypeOf(err))
		},
		BeforeRetry: func(attempt int, err error) error {
			next, rerr := c.rotator.NextProxy(ctx, err)
			if rerr != nil {
				return rerr
			}
			return c.SetProxy(next)
		},
		Logger: c.logger,
	})
	if err != nil {
		return nil, err
	}

	return NewPage(body, c.pageOpts), nil
}

func (c *Client) fetchJSON(ctx context.Context, pageURL string) ([]byte, error) {
	resp, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &errors.Error{
			Type:    errors.ErrorTypeNotFound,
			Message: fmt.Sprintf("account %s not found", c.account),
			Code:    resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeNetwork, "failed to read response body", err)
	}

	if !gjson.ValidBytes(body) {
		return nil, c.malformed(body, resp.StatusCode)
	}
	return body, nil
}

func (c *Client) malformed(body []byte, status int) error {
	e := &errors.Error{
		Type:    errors.ErrorTypeMalformed,
		Message: "response is not JSON",
		Code:    status,
	}
	if c.diagnostics == "" {
		return e
	}

	if err := os.MkdirAll(filepath.Dir(c.diagnostics), 0755); err != nil {
		c.logger.WithError(err).Warn("failed to create diagnostics directory")
		return e
	}
	if err := os.WriteFile(c.diagnostics, body, 0644); err != nil {
		c.logger.WithError(err).Warn("failed to write diagnostics file")
		return e
	}

	e.Path = c.diagnostics
	c.logger.ErrorWithFields("malformed response saved", map[string]interface{}{
		"file":  c.diagnostics,
		"bytes": len(body),
	})
	return e
}

// get performs one GET and classifies transport failures and unexpected statuses.
// 200 and 404 are returned to the caller; anything else is an error. The
// returned body fails once no data arrives for the client timeout.
func (c *Client) get(ctx context.Context, target string) (*http.Response, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	resp, err := c.do(ctx, reqCtx, target)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = newIdleBody(resp.Body, c.timeout, cancel)
	return resp, nil
}

func (c *Client) do(ctx, reqCtx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, "failed to create request", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":   target,
			"proxy": c.proxy,
			"error": err.Error(),
		})
		return nil, errors.Wrap(errors.ErrorTypeNetwork, "request failed", err)
	}
	logger.LogRequest(c.logger, target, resp.StatusCode, time.Since(start))

	if errors.IsRetryableStatusCode(resp.StatusCode) {
		resp.Body.Close()
		return nil, &errors.Error{
			Type:    errors.TypeForStatus(resp.StatusCode),
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
	return resp, nil
}

// Download streams a media asset through the same session and proxy.
// The caller closes the returned body.
func (c *Client) Download(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	resp, err := c.get(ctx, mediaURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, &errors.Error{
			Type:    errors.ErrorTypeNotFound,
			Message: "media not found",
			Code:    resp.StatusCode,
		}
	}
	return resp.Body, nil
}

// idleBody cancels its request when Read makes no progress for timeout
type idleBody struct {
	io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	stalled atomic.Bool
}

func newIdleBody(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *idleBody {
	b := &idleBody{ReadCloser: body, timeout: timeout, cancel: cancel}
	b.timer = time.AfterFunc(timeout, func() {
		b.stalled.Store(true)
		cancel()
	})
	return b
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 && !b.stalled.Load() {
		b.timer.Reset(b.timeout)
	}
	if err != nil && err != io.EOF && b.stalled.Load() {
		// not a cancellation of the run, just a dead connection
		return n, &errors.Error{
			Type:    errors.ErrorTypeNetwork,
			Message: fmt.Sprintf("no data received for %s", b.timeout),
		}
	}
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	b.cancel()
	return b.ReadCloser.Close()
}
