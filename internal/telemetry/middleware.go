package telemetry

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const ActorHeader = "X-Actor-ID"

type SampleCollector interface {
	Collect(s Sample)
}

type MiddlewareConfig struct {
	Collector    SampleCollector
	SkipPrefixes []string
	Actor        func(c echo.Context) string
	Now          func() time.Time
}

type countingReader struct {
	io.ReadCloser
	n int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	return n, err
}

func defaultActor(c echo.Context) string {
	if id := c.Request().Header.Get(ActorHeader); id != "" {
		return id
	}
	if id, ok := c.Get("user_id").(string); ok {
		return id
	}
	return ""
}

// Middleware records one sample per request once the handler and the error
// handler have produced the response. Collection is fire-and-forget and adds
// no failure mode to the request.
func Middleware(cfg MiddlewareConfig) echo.MiddlewareFunc {
	if cfg.Actor == nil {
		cfg.Actor = defaultActor
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			for _, prefix := range cfg.SkipPrefixes {
				if strings.HasPrefix(req.URL.Path, prefix) {
					return next(c)
				}
			}

			var body *countingReader
			if req.Body != nil && req.Body != http.NoBody {
				body = &countingReader{ReadCloser: req.Body}
				req.Body = body
			}

			start := cfg.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			res := c.Response()
			reqBytes := req.ContentLength
			if body != nil && body.n > reqBytes {
				reqBytes = body.n
			}
			if reqBytes < 0 {
				reqBytes = 0
			}

			endpoint := c.Path()
			if endpoint == "" {
				endpoint = req.URL.Path
			}

			cfg.Collector.Collect(Sample{
				Endpoint:      endpoint,
				Method:        req.Method,
				RequestBytes:  reqBytes,
				ResponseBytes: res.Size,
				ElapsedMs:     cfg.Now().Sub(start).Milliseconds(),
				StatusCode:    res.Status,
				Timestamp:     start.UTC(),
				ActorID:       cfg.Actor(c),
			})
			return err
		}
	}
}
