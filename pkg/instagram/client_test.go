package instagram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"instadb/pkg/config"
	"instadb/pkg/errors"
	"instadb/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string, opts ClientOptions) *Client {
	t.Helper()
	opts.Account = "natgeo"
	opts.BaseURL = baseURL
	opts.UserAgent = "instadb-test"
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewTestLogger()
	}
	client, err := NewClient(opts)
	require.NoError(t, err)
	return client
}

func TestNewClientFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Network.Proxy = "10.0.0.1:3128"

	client, err := NewClientFromConfig(cfg, "natgeo", nil, logger.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, "natgeo", client.Account())
	assert.Equal(t, "10.0.0.1:3128", client.Proxy())
	assert.Equal(t, filepath.Join(cfg.Output.BaseDirectory, "natgeo", "bad_json.txt"), client.diagnostics)
	assert.Equal(t, cfg.Instagram.UserAgent, client.headers["User-Agent"])
	assert.Equal(t, time.UTC, client.pageOpts.Location)
}

func TestNewClientRejectsBadProxy(t *testing.T) {
	_, err := NewClient(ClientOptions{Account: "natgeo", Proxy: "not-a-proxy", Logger: logger.NewNopLogger()})
	assert.Error(t, err)
}

func TestFetchPageRequest(t *testing.T) {
	var gotPath, gotQuery, gotUA, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("max_id")
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Write([]byte(feedPage))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientOptions{})

	page, err := client.FetchPage(context.Background(), "1700_3")
	require.NoError(t, err)

	assert.Equal(t, "/natgeo/media/", gotPath)
	assert.Equal(t, "1700_3", gotQuery)
	assert.Equal(t, "instadb-test", gotUA)
	assert.Equal(t, server.URL+"/", gotReferer)
	assert.Equal(t, 3, page.PostCount())
}

func TestFetchPageWithoutCursor(t *testing.T) {
	var rawQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		w.Write([]byte(`{"items": [], "more_available": false}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientOptions{})

	_, err := client.FetchPage(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, rawQuery)
}

func TestFetchPageNotFound(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	rotations := 0
	client := newTestClient(t, server.URL, ClientOptions{
		Rotator: RotatorFunc(func(ctx context.Context, cause error) (string, error) {
			rotations++
			return "", cause
		}),
	})

	_, err := client.FetchPage(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeNotFound, errors.TypeOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "404 is never retried")
	assert.Equal(t, 0, rotations)
}

func TestFetchPageMalformed(t *testing.T) {
	body := "<html>Please wait a few minutes before you try again.</html>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	diag := filepath.Join(t.TempDir(), "out", "bad_json.txt")
	client := newTestClient(t, server.URL, ClientOptions{DiagnosticsFile: diag})

	_, err := client.FetchPage(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeMalformed, errors.TypeOf(err))

	saved, readErr := os.ReadFile(diag)
	require.NoError(t, readErr)
	assert.Equal(t, body, string(saved))
}

func TestFetchPageStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected errors.ErrorType
	}{
		{http.StatusTooManyRequests, errors.ErrorTypeRateLimit},
		{http.StatusBadGateway, errors.ErrorTypeServerError},
		{http.StatusForbidden, errors.ErrorTypeNetwork},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, ClientOptions{Rotator: FailFast{}})

			_, err := client.FetchPage(context.Background(), "")
			require.Error(t, err)
			assert.Equal(t, tt.expected, errors.TypeOf(err))
		})
	}
}

func TestFetchPageTransportFailureFailsFast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	client := newTestClient(t, addr, ClientOptions{})

	_, err := client.FetchPage(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeNetwork, errors.TypeOf(err))
}

func TestFetchPageRotatesProxy(t *testing.T) {
	var originHits int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&originHits, 1)
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "abc", Path: "/"})
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer origin.Close()

	var proxiedPath string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxiedPath = r.URL.Path
		w.Write([]byte(feedPage))
	}))
	defer proxy.Close()

	proxyAddr := strings.TrimPrefix(proxy.URL, "http://")
	var causes []error
	client := newTestClient(t, origin.URL, ClientOptions{
		Rotator: RotatorFunc(func(ctx context.Context, cause error) (string, error) {
			causes = append(causes, cause)
			return proxyAddr, nil
		}),
	})
	jarBefore := client.httpClient.Jar

	page, err := client.FetchPage(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 3, page.PostCount())
	assert.Equal(t, int32(1), atomic.LoadInt32(&originHits))
	assert.Equal(t, "/natgeo/media/", proxiedPath)
	assert.Equal(t, proxyAddr, client.Proxy())
	require.Len(t, causes, 1)
	assert.Equal(t, errors.ErrorTypeServerError, errors.TypeOf(causes[0]))

	originURL, _ := url.Parse(origin.URL)
	assert.NotEmpty(t, jarBefore.Cookies(originURL), "cookie was set before rotation")
	assert.Empty(t, client.httpClient.Jar.Cookies(originURL), "rotation clears cookies")
}

func TestFetchPageRotationExhausted(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// The "proxies" point back at the same failing server.
	addr := strings.TrimPrefix(server.URL, "http://")
	client := newTestClient(t, server.URL, ClientOptions{
		Rotator: NewListRotator([]string{addr, addr}, nil),
	})

	_, err := client.FetchPage(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeServerError, errors.TypeOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetchPageMaxAttempts(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientOptions{
		MaxAttempts: 2,
		Rotator: RotatorFunc(func(ctx context.Context, cause error) (string, error) {
			return "", nil
		}),
	})

	_, err := client.FetchPage(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchPageCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedPage))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, server.URL, ClientOptions{})
	_, err := client.FetchPage(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("media-bytes"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientOptions{})

	body, err := client.Download(context.Background(), server.URL+"/a.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	body.Close()
	require.NoError(t, err)
	assert.Equal(t, "media-bytes", string(data))

	_, err = client.Download(context.Background(), server.URL+"/missing.jpg")
	assert.Equal(t, errors.ErrorTypeNotFound, errors.TypeOf(err))
}

func TestDownloadSlowBodyIsNotCutOff(t *testing.T) {
	chunk := strings.Repeat("x", 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 8; i++ {
			w.Write([]byte(chunk))
			flusher.Flush()
			time.Sleep(300 * time.Millisecond)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientOptions{Timeout: time.Second})

	body, err := client.Download(context.Background(), server.URL+"/v.mp4")
	require.NoError(t, err)
	defer body.Close()

	n, err := io.Copy(io.Discard, body)
	require.NoError(t, err, "a steady stream longer than the timeout must complete")
	assert.Equal(t, int64(8*1024), n)
}

func TestDownloadStalledBodyIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, ClientOptions{Timeout: 300 * time.Millisecond})

	body, err := client.Download(context.Background(), server.URL+"/v.mp4")
	require.NoError(t, err)
	defer body.Close()

	_, err = io.Copy(io.Discard, body)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeNetwork, errors.TypeOf(err))
	assert.NotErrorIs(t, err, context.Canceled, "a stalled body must not look like an interrupt")
}

func TestClientLogsRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedPage))
	}))
	defer server.Close()

	tl := logger.NewTestLogger()
	client := newTestClient(t, server.URL, ClientOptions{Logger: tl})

	_, err := client.FetchPage(context.Background(), "")
	require.NoError(t, err)

	require.True(t, tl.HasMessage("HTTP request completed"))
	msg := tl.GetMessagesByLevel("DEBUG")[0]
	assert.Equal(t, "natgeo", msg.Fields["account"])
	assert.Equal(t, 200, msg.Fields["status_code"])
}
