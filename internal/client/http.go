package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Second

// APIError is a non-2xx daemon response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("memdev: http %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Option func(*options)

type options struct {
	httpClient *http.Client
	tlsConfig  *tls.Config
	timeout    time.Duration
	token      string
}

// WithHTTPClient replaces the HTTP client. It takes precedence over WithTLS
// and WithTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithTLS(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithToken sends token as a bearer credential. Empty tokens are not sent.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// HTTPSession is a daemon session. Read and Write follow the device's
// positional contract through the daemon's session cursor.
type HTTPSession struct {
	ctx     context.Context
	http    *http.Client
	baseURL string
	token   string
	device  string
	id      uint64
	pos     int64
}

var _ Device = (*HTTPSession)(nil)

// Dial opens a session on device at the daemon reachable under baseURL.
func Dial(ctx context.Context, baseURL, device string, opts ...Option) (*HTTPSession, error) {
	o := options{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: o.timeout}
		if o.tlsConfig != nil {
			hc.Transport = &http.Transport{TLSClientConfig: o.tlsConfig}
		}
	}

	s := &HTTPSession{
		ctx:     ctx,
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   o.token,
		device:  device,
	}
	var opened struct {
		Session  uint64 `json:"session"`
		Position int64  `json:"position"`
	}
	if err := s.doJSON(http.MethodPost, "/devices/"+url.PathEscape(device)+"/open", nil, &opened); err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	s.id = opened.Session
	s.pos = opened.Position
	return s, nil
}

func (s *HTTPSession) ID() uint64 {
	return s.id
}

// Position is the cursor reported by the daemon after the last transfer.
func (s *HTTPSession) Position() int64 {
	return s.pos
}

// Read implements io.Reader. It returns io.EOF once the daemon reports no
// bytes left for a non-empty p.
func (s *HTTPSession) Read(p []byte) (int, error) {
	path := fmt.Sprintf("/sessions/%d/read?count=%d", s.id, len(p))
	resp, err := s.do(http.MethodPost, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(len(p))+1))
	if err != nil {
		return 0, err
	}
	if len(data) > len(p) {
		return 0, fmt.Errorf("memdev: daemon returned %d bytes for count %d", len(data), len(p))
	}
	s.updatePosition(resp.Header)
	n := copy(p, data)
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write implements io.Writer. A write clamped by the device capacity returns
// io.ErrShortWrite with the stored count.
func (s *HTTPSession) Write(p []byte) (int, error) {
	var out struct {
		Written  int   `json:"written"`
		Position int64 `json:"position"`
	}
	if err := s.doJSON(http.MethodPost, fmt.Sprintf("/sessions/%d/write", s.id), p, &out); err != nil {
		return 0, err
	}
	s.pos = out.Position
	if out.Written < len(p) {
		return out.Written, io.ErrShortWrite
	}
	return out.Written, nil
}

// Close releases the session on the daemon.
func (s *HTTPSession) Close() error {
	return s.doJSON(http.MethodDelete, fmt.Sprintf("/sessions/%d", s.id), nil, nil)
}

func (s *HTTPSession) updatePosition(h http.Header) {
	if v, err := strconv.ParseInt(h.Get("X-Memdev-Position"), 10, 64); err == nil {
		s.pos = v
	}
}

func (s *HTTPSession) doJSON(method, path string, body []byte, out any) error {
	resp, err := s.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("memdev: decode %s %s: %w", method, path, err)
	}
	return nil
}

// do returns the response only for 2xx statuses; other statuses become *APIError.
func (s *HTTPSession) do(method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(s.ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return nil, apiErr
}
