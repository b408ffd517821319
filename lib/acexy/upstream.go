package acexy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// AcexyEndpoint selects which AceStream middleware endpoint is used for
// every *open* call — the choice is process-wide configuration, not
// per-request.
type AcexyEndpoint string

const (
	M3U8_ENDPOINT    AcexyEndpoint = "/ace/manifest.m3u8"
	MPEG_TS_ENDPOINT AcexyEndpoint = "/ace/getstream"
)

// AceStreamResponse mirrors the middleware's "response" object. Only
// PlaybackURL and CommandURL are required by the multiplexer; StatURL
// is surfaced through /ace/status when present.
// https://docs.acestream.net/developers/start-playback/#using-middleware
type AceStreamResponse struct {
	PlaybackURL string `json:"playback_url"`
	StatURL     string `json:"stat_url"`
	CommandURL  string `json:"command_url"`
}

type aceStreamMiddleware struct {
	Response AceStreamResponse `json:"response"`
	Error    string            `json:"error"`
}

type aceStreamCommand struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Descriptor is the immutable record produced by a successful *open*
// call. It lives from *open* until *stop* completes.
type Descriptor struct {
	PlaybackURL string
	CommandURL  string
	StatURL     string
	Key         AceID
}

// UpstreamError classifies why an *open* call failed.
type UpstreamError struct {
	Kind    string
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

const (
	KindUpstreamStatus  = "upstream_status"
	KindUpstreamError   = "upstream_error"
	KindUpstreamSchema  = "upstream_schema"
	KindUpstreamTimeout = "upstream_timeout"
	KindReservedParam   = "reserved_param"
)

// ErrPIDReserved is returned when a caller-supplied extraParams set
// already contains "pid" — that query slot is reserved for the proxy's
// own per-session token.
var ErrPIDReserved = &UpstreamError{Kind: KindReservedParam, Message: `"pid" is reserved and may not be supplied`}

// UpstreamClient is the capability set the multiplexer needs from the
// AceStream middleware: resolve a content key into a playback session
// (Open), release it (Stop), and fetch the playback body (Connect).
// Named as an interface so tests can substitute a deterministic
// in-memory upstream with controllable pacing.
type UpstreamClient interface {
	Open(ctx context.Context, key AceID, extraParams url.Values) (*Descriptor, error)
	Stop(ctx context.Context, desc *Descriptor)
	Connect(ctx context.Context, desc *Descriptor) (io.ReadCloser, error)
}

// HTTPUpstreamClient talks to a real AceStream middleware over HTTP.
//
// *open* and *connect* have materially different timing: *open* is a
// quick JSON round-trip bounded by NoResponseTimeout (default 1s), while
// *connect* fetches the playback body and must tolerate the middleware
// taking up to EmptyTimeout (default 60s) to start sending bytes. Each
// gets its own http.Client so one bound can't leak into the other's
// request.
type HTTPUpstreamClient struct {
	Scheme            string
	Host              string
	Port              int
	Endpoint          AcexyEndpoint
	NoResponseTimeout time.Duration
	EmptyTimeout      time.Duration

	openClient    *http.Client
	connectClient *http.Client
}

// NewHTTPUpstreamClient builds clients with a connection pool tuned the
// way the AceStream middleware expects: compression disabled (it
// doesn't handle it well) and a bounded number of idle/total
// connections per host. noResponseTimeout bounds *open*; emptyTimeout
// bounds how long *connect* waits for the playback response to start.
func NewHTTPUpstreamClient(scheme, host string, port int, endpoint AcexyEndpoint, noResponseTimeout, emptyTimeout time.Duration) *HTTPUpstreamClient {
	newClient := func(responseHeaderTimeout time.Duration) *http.Client {
		return &http.Client{
			Transport: &http.Transport{
				DisableCompression:    true,
				MaxIdleConns:          10,
				MaxConnsPerHost:       10,
				IdleConnTimeout:       30 * time.Second,
				ResponseHeaderTimeout: responseHeaderTimeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	}
	return &HTTPUpstreamClient{
		Scheme:            scheme,
		Host:              host,
		Port:              port,
		Endpoint:          endpoint,
		NoResponseTimeout: noResponseTimeout,
		EmptyTimeout:      emptyTimeout,
		openClient:        newClient(noResponseTimeout),
		connectClient:     newClient(emptyTimeout),
	}
}

// Close releases both clients' idle connections. Called once at process
// shutdown.
func (c *HTTPUpstreamClient) Close() {
	c.openClient.CloseIdleConnections()
	c.connectClient.CloseIdleConnections()
}

func (c *HTTPUpstreamClient) baseURL() string {
	return c.Scheme + "://" + c.Host + ":" + strconv.Itoa(c.Port) + string(c.Endpoint)
}

// Open resolves a content key into a playback session. The full
// request is bounded by NoResponseTimeout regardless of the caller's
// context deadline.
func (c *HTTPUpstreamClient) Open(ctx context.Context, key AceID, extraParams url.Values) (*Descriptor, error) {
	if extraParams.Get("pid") != "" {
		return nil, ErrPIDReserved
	}

	ctx, cancel := context.WithTimeout(ctx, c.NoResponseTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(), nil)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range extraParams {
		q[k] = v
	}
	idType, id := key.ID()
	q.Set(string(idType), id)
	q.Set("format", "json")
	q.Set("pid", uuid.NewString())
	req.URL.RawQuery = q.Encode()

	res, err := c.openClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &UpstreamError{Kind: KindUpstreamTimeout, Message: err.Error()}
		}
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Kind: KindUpstreamStatus, Message: fmt.Sprintf("status %d", res.StatusCode)}
	}

	var body aceStreamMiddleware
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, &UpstreamError{Kind: KindUpstreamSchema, Message: err.Error()}
	}
	if body.Error != "" {
		return nil, &UpstreamError{Kind: KindUpstreamError, Message: body.Error}
	}
	if body.Response.PlaybackURL == "" || body.Response.CommandURL == "" {
		return nil, &UpstreamError{Kind: KindUpstreamSchema, Message: "missing playback_url or command_url"}
	}

	return &Descriptor{
		PlaybackURL: body.Response.PlaybackURL,
		CommandURL:  body.Response.CommandURL,
		StatURL:     body.Response.StatURL,
		Key:         key,
	}, nil
}

// Stop releases an upstream session. Best-effort: every failure is
// classified as StopDispatchFailure — logged and swallowed, never
// propagated — since the caller's teardown must proceed regardless.
func (c *HTTPUpstreamClient) Stop(ctx context.Context, desc *Descriptor) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.CommandURL, nil)
	if err != nil {
		slog.Warn("stop dispatch failed: building request", "key", desc.Key.String(), "error", err)
		return
	}
	q := req.URL.Query()
	q.Set("method", "stop")
	req.URL.RawQuery = q.Encode()

	res, err := c.openClient.Do(req)
	if err != nil {
		slog.Warn("stop dispatch failed", "key", desc.Key.String(), "error", err)
		return
	}
	defer res.Body.Close()

	var body aceStreamCommand
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		slog.Warn("stop dispatch failed: decoding response", "key", desc.Key.String(), "error", err)
		return
	}
	if body.Error != "" {
		slog.Warn("stop dispatch failed: middleware reported an error", "key", desc.Key.String(), "error", body.Error)
	}
}

// Connect opens the upstream playback body for reading. The caller
// owns the returned ReadCloser and must close it. Unlike Open, Connect
// carries no per-call deadline beyond the connectClient's
// ResponseHeaderTimeout (EmptyTimeout) — once headers arrive, the
// Producer Loop's own empty-timeout logic governs inactivity.
func (c *HTTPUpstreamClient) Connect(ctx context.Context, desc *Descriptor) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.PlaybackURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.connectClient.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, &UpstreamError{Kind: KindUpstreamStatus, Message: fmt.Sprintf("status %d", res.StatusCode)}
	}
	return res.Body, nil
}
