// Package dispatch performs outbound calls to the upstream chat service.
// Three forwarding modes exist: buffered JSON, raw multipart passthrough,
// and streamed passthrough (including SSE).
package dispatch

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

	"github.com/widgetgate/widgetgate/pkg/config"
	"github.com/widgetgate/widgetgate/pkg/logging"
)

// Hop-by-hop headers never forwarded upstream; the outbound client
// recomputes them.
var hopByHopHeaders = []string{
	"Host",
	"Content-Length",
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Relay is a buffered upstream response ready to hand back downstream.
type Relay struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Dispatcher performs outbound calls to the upstream service with the
// gateway credential injected.
type Dispatcher struct {
	baseURL       *url.URL
	apiKey        string
	requestClient *http.Client // buffered JSON calls
	uploadClient  *http.Client // large attachment uploads
	streamClient  *http.Client // no overall timeout; lifetime bound to ctx
	recoverer     BoundaryRecoverer
	logger        logging.Logger
}

// NewDispatcher creates a Dispatcher for the configured upstream.
func NewDispatcher(cfg config.UpstreamConfig, logger logging.Logger) (*Dispatcher, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	return &Dispatcher{
		baseURL:       base,
		apiKey:        cfg.APIKey,
		requestClient: &http.Client{Timeout: cfg.Timeouts.GetRequestTimeout()},
		uploadClient:  &http.Client{Timeout: cfg.Timeouts.GetUploadTimeout()},
		streamClient:  &http.Client{},
		recoverer:     FirstLineRecoverer{},
		logger:        logger.WithModule("dispatch"),
	}, nil
}

// upstreamURL joins the upstream base with a path and raw query.
func (d *Dispatcher) upstreamURL(path, rawQuery string) string {
	u := *d.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = rawQuery
	return u.String()
}

// newRequest builds an outbound request with hop-by-hop headers stripped
// and the upstream credential injected.
func (d *Dispatcher) newRequest(ctx context.Context, method, path, rawQuery string, body io.Reader, inbound http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, d.upstreamURL(path, rawQuery), body)
	if err != nil {
		return nil, err
	}

	for key, values := range inbound {
		req.Header[key] = append([]string(nil), values...)
	}
	for _, h := range hopByHopHeaders {
		req.Header.Del(h)
	}

	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	return req, nil
}

// buffer reads and closes an upstream response.
func buffer(resp *http.Response) (*Relay, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	return &Relay{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// ForwardJSON relays a buffered JSON request upstream and returns the
// buffered response, whatever its status code; the caller relays it
// verbatim. Only transport failures surface as errors.
func (d *Dispatcher) ForwardJSON(ctx context.Context, method, path, rawQuery string, body []byte, inbound http.Header) (*Relay, error) {
	req, err := d.newRequest(ctx, method, path, rawQuery, bytes.NewReader(body), inbound)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if req.Header.Get("Content-Type") == "" && len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.requestClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	return buffer(resp)
}

// ForwardMultipart relays a fully buffered raw multipart body upstream.
// The boundary comes from the Content-Type header or, failing that, is
// recovered from the first line of the body.
func (d *Dispatcher) ForwardMultipart(ctx context.Context, path, rawQuery string, raw []byte, contentType string) (*Relay, error) {
	outboundType, err := EnsureBoundary(contentType, raw, d.recoverer)
	if err != nil {
		return nil, err
	}
	if outboundType != contentType {
		d.logger.Warn("Recovered multipart boundary from request body", "path", path)
	}

	req, err := d.newRequest(ctx, http.MethodPost, path, rawQuery, bytes.NewReader(raw), nil)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	req.Header.Set("Content-Type", outboundType)

	resp, err := d.uploadClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	return buffer(resp)
}

// ForwardStream relays a request upstream and pipes the response body
// directly to the downstream writer. All upstream headers are copied
// before the first body byte; SSE responses additionally force
// Cache-Control and Connection headers. Once headers are written, stream
// errors can only be logged, never converted to a different status.
func (d *Dispatcher) ForwardStream(ctx context.Context, w http.ResponseWriter, method, path, rawQuery string, body []byte, inbound http.Header) error {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := d.newRequest(ctx, method, path, rawQuery, reader, inbound)
	if err != nil {
		return &UpstreamError{Err: err}
	}
	if req.Header.Get("Content-Type") == "" && len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.streamClient.Do(req)
	if err != nil {
		return &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	header := w.Header()
	for key, values := range resp.Header {
		header[key] = append([]string(nil), values...)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				d.logger.Debug("Downstream write failed mid-stream", "error", writeErr)
				return nil
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF && !errors.Is(readErr, context.Canceled) {
				d.logger.Error("Upstream stream aborted", "path", path, "error", readErr)
			}
			return nil
		}
	}
}

// WantsStream reports whether a request should use streamed passthrough:
// either the JSON body carries an explicit streaming flag or the target
// path implies a download/stream.
func WantsStream(path string, body []byte) bool {
	if strings.Contains(path, "get-upload-file") || strings.Contains(path, "/download") || strings.Contains(path, "/stream") {
		return true
	}

	if len(body) == 0 {
		return false
	}
	var probe struct {
		Streaming bool `json:"streaming"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Streaming
}

// ReadBody buffers a request body up to the given limit. Oversized bodies
// return ErrUploadTooLarge rather than a generic failure.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}

	reader := io.LimitReader(r.Body, limit+1)
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrUploadTooLarge
	}
	return body, nil
}
