package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout        = 5 * time.Second
	defaultCSRFCookieName = "XSRF-TOKEN"
	defaultCSRFHeaderName = "X-XSRF-TOKEN"
	maxResponseBody       = 1 << 20
)

// Config configures an API.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	Origin         string
	Headers        map[string]string
	CSRFCookieName string
	CSRFHeaderName string
	// RequestID returns the correlation id sent as X-Request-ID, or "" for none.
	RequestID func(context.Context) string
}

// Response is a successful (2xx) backend response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// API sends JSON requests to the auth backend.
type API struct {
	cfg  Config
	base *url.URL
	http *http.Client
}

// New returns an API for cfg. When client is nil a client with cfg.Timeout and a
// fresh cookie jar is used; a client without a jar gets one.
func New(cfg Config, client *http.Client) (*API, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.New("base url must be http or https")
	}
	if base.Host == "" {
		return nil, errors.New("base url must have a host")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CSRFCookieName == "" {
		cfg.CSRFCookieName = defaultCSRFCookieName
	}
	if cfg.CSRFHeaderName == "" {
		cfg.CSRFHeaderName = defaultCSRFHeaderName
	}

	var hc http.Client
	if client != nil {
		hc = *client
	}
	if hc.Timeout <= 0 {
		hc.Timeout = cfg.Timeout
	}
	if hc.Jar == nil {
		hc.Jar = NewJar()
	}

	return &API{cfg: cfg, base: base, http: &hc}, nil
}

// WithJar returns a copy of the API that keeps its cookies in jar.
func (a *API) WithJar(jar http.CookieJar) *API {
	hc := *a.http
	hc.Jar = jar
	return &API{cfg: a.cfg, base: a.base, http: &hc}
}

// Jar returns the cookie jar used for requests.
func (a *API) Jar() http.CookieJar {
	return a.http.Jar
}

// BaseURL returns the parsed backend base URL.
func (a *API) BaseURL() *url.URL {
	u := *a.base
	return &u
}

// URL resolves path against the base URL.
func (a *API) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return a.base.String() + path
}

// Get issues a GET request.
func (a *API) Get(ctx context.Context, path string) (*Response, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST request with body encoded as JSON. A nil body is sent as {}.
func (a *API) Post(ctx context.Context, path string, body any) (*Response, error) {
	if body == nil {
		body = struct{}{}
	}
	return a.do(ctx, http.MethodPost, path, body)
}

// CSRFToken returns the decoded anti-forgery token currently held in the jar.
func (a *API) CSRFToken() string {
	if a.http.Jar == nil {
		return ""
	}
	for _, c := range a.http.Jar.Cookies(a.base) {
		if c.Name != a.cfg.CSRFCookieName {
			continue
		}
		token, err := url.QueryUnescape(c.Value)
		if err != nil {
			return c.Value
		}
		return token
	}
	return ""
}

func (a *API) do(ctx context.Context, method, path string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.URL(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	a.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !isSafeMethod(method) {
		if token := a.CSRFToken(); token != "" {
			req.Header.Set(a.cfg.CSRFHeaderName, token)
		}
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       data,
		}
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func (a *API) setHeaders(req *http.Request) {
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json")
	if a.cfg.Origin != "" {
		req.Header.Set("Origin", a.cfg.Origin)
		req.Header.Set("Referer", strings.TrimRight(a.cfg.Origin, "/")+"/")
	}
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}
	if a.cfg.RequestID != nil {
		if id := a.cfg.RequestID(req.Context()); id != "" {
			req.Header.Set("X-Request-ID", id)
		}
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
