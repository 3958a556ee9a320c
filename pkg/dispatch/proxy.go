package dispatch

import (
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/widgetgate/widgetgate/pkg/logging"
)

// PathRewriteFunc maps an inbound path to the outbound upstream path.
type PathRewriteFunc func(path string) string

// NewReverseProxy creates the generic relay for routes with no dedicated
// handler. The Director rewrites the path, injects the upstream
// credential, and sets X-Forwarded-* headers; FlushInterval keeps SSE and
// other streamed responses flowing.
func NewReverseProxy(target *url.URL, apiKey string, rewritePath PathRewriteFunc, logger logging.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		if rewritePath != nil {
			req.URL.Path = rewritePath(req.URL.Path)
		}

		originalDirector(req)

		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
				clientIP = prior + ", " + clientIP
			}
			req.Header.Set("X-Forwarded-For", clientIP)
		}
		if req.Header.Get("X-Forwarded-Proto") == "" {
			proto := "http"
			if req.TLS != nil {
				proto = "https"
			}
			req.Header.Set("X-Forwarded-Proto", proto)
		}
		if req.Header.Get("X-Forwarded-Host") == "" {
			req.Header.Set("X-Forwarded-Host", req.Host)
		}
	}

	// FlushInterval makes the ReverseProxy flush while copying the
	// response body, which SSE depends on.
	proxy.FlushInterval = 100 * time.Millisecond
	proxy.BufferPool = newBufferPool()

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("Generic relay failed", "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"proxy server error"}`))
	}

	return proxy
}

// bufferPool implements httputil.BufferPool over sync.Pool to reduce GC
// pressure on large transfers.
type bufferPool struct {
	pool *sync.Pool
}

func newBufferPool() *bufferPool {
	return &bufferPool{
		pool: &sync.Pool{
			New: func() interface{} {
				b := make([]byte, 32*1024)
				return &b
			},
		},
	}
}

func (bp *bufferPool) Get() []byte {
	bufPtr := bp.pool.Get().(*[]byte)
	return *bufPtr
}

func (bp *bufferPool) Put(b []byte) {
	// Only pool buffers of the expected size to prevent memory bloat
	if cap(b) != 32*1024 {
		return
	}
	b = b[:cap(b)]
	bp.pool.Put(&b)
}
