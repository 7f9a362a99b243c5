package xhttp

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/bubuagent/bubu-agent/pkg/logger"
	"github.com/valyala/fasthttp"
)

const slowThreshold = 500 * time.Millisecond

var skipPaths = []string{"/healthz", "/metrics"}

type MiddlewareFunc func(next RequestHandler) RequestHandler

func TimeoutMiddleware(timeout time.Duration) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.TimeoutWithCodeHandler(next, timeout, StatusText(StatusRequestTimeout), StatusRequestTimeout)
	}
}

func RecoverMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		defer func() {
			if err := recover(); err != nil {
				ctx.Error(StatusText(StatusInternalServerError), StatusInternalServerError)
				ctx.Logger().Printf("panic: %v", err)
				logger.Error("[xhttp] panic recovered", "error", err)
			}
		}()
		next(ctx)
	}
}

// BearerAuthMiddleware rejects requests that do not carry the expected
// bearer token. Paths listed in exempt (and the ones in skipPaths) pass
// through without a token. An empty token disables the check; the caller
// decides whether an open surface is acceptable.
func BearerAuthMiddleware(token string, exempt ...string) MiddlewareFunc {
	open := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		open[p] = struct{}{}
	}
	want := []byte("Bearer " + token)
	return func(next RequestHandler) RequestHandler {
		return func(ctx *RequestCtx) {
			path := string(ctx.Path())
			if token == "" || shouldSkip(path) {
				next(ctx)
				return
			}
			if _, ok := open[path]; ok {
				next(ctx)
				return
			}
			got := ctx.Request.Header.Peek("Authorization")
			if subtle.ConstantTimeCompare(got, want) != 1 {
				ctx.Error(StatusText(StatusUnauthorized), StatusUnauthorized)
				return
			}
			next(ctx)
		}
	}
}

func RequestLoggerMiddleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		if shouldSkip(path) {
			next(ctx)
			return
		}

		start := time.Now()
		next(ctx)

		latency := time.Since(start)
		status := ctx.Response.StatusCode()
		method := string(ctx.Method())
		ip := ctx.RemoteIP().String()
		rid := requestID(ctx)

		lg := logger.GetLogger()

		// choose level
		switch {
		case status >= 500:
			lg.Error("http_request",
				"status", status,
				"method", method,
				"path", path,
				"latency", latency.String(),
				"ip", ip,
				"request_id", rid,
			)
		case status >= 400 || latency > slowThreshold:
			lg.Warn("http_request",
				"status", status,
				"method", method,
				"path", path,
				"latency", latency.String(),
				"ip", ip,
				"request_id", rid,
			)
		default:
			lg.Info("http_request",
				"status", status,
				"method", method,
				"path", path,
				"latency", latency.String(),
				"ip", ip,
				"request_id", rid,
			)
		}
	}
}

func shouldSkip(p string) bool {
	for _, sp := range skipPaths {
		if strings.HasPrefix(p, sp) {
			return true
		}
	}
	return false
}

func requestID(ctx *fasthttp.RequestCtx) string {
	if v := ctx.Request.Header.Peek("X-Request-Id"); len(v) > 0 {
		return string(v)
	}
	if v := ctx.Request.Header.Peek("X-Request-ID"); len(v) > 0 { // common variant
		return string(v)
	}
	return ""
}
