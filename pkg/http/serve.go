package xhttp

import (
	"os"
	"os/signal"
	"reflect"
	"runtime"
	"slices"
	"syscall"
	"time"

	"github.com/bubuagent/bubu-agent/pkg/logger"
	"github.com/valyala/fasthttp"
)

type RequestCtx = fasthttp.RequestCtx
type RequestHandler = fasthttp.RequestHandler
type Server = fasthttp.Server

const (
	StatusOK                  = fasthttp.StatusOK
	StatusAccepted            = fasthttp.StatusAccepted
	StatusBadRequest          = fasthttp.StatusBadRequest
	StatusUnauthorized        = fasthttp.StatusUnauthorized
	StatusNotFound            = fasthttp.StatusNotFound
	StatusConflict            = fasthttp.StatusConflict
	StatusRequestTimeout      = fasthttp.StatusRequestTimeout
	StatusInternalServerError = fasthttp.StatusInternalServerError
	StatusServiceUnavailable  = fasthttp.StatusServiceUnavailable
)

func StatusText(code int) string {
	return fasthttp.StatusMessage(code)
}

type ServerOption struct {
	Handler RequestHandler

	// if we keep open idle connections for too long we can hit
	// too many open files, so idle connections get a max age
	IdleTimeout time.Duration

	MaxIdleWorkerDuration time.Duration
	TCPKeepalivePeriod    time.Duration

	// request bodies on this surface are tiny, a small cap is enough
	MaxRequestBodySize int

	RequestTimeout  time.Duration
	ReadBufferSize  int
	WriteBufferSize int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	Concurrency     int
	MaxConnsPerIP   int

	ErrorHandler          func(ctx *RequestCtx, err error)
	Name                  string
	DisableKeepalive      bool
	TCPKeepalive          bool
	LogAllErrors          bool
	NoDefaultServerHeader bool
	NoDefaultDate         bool
	NoDefaultContentType  bool
	CloseOnShutdown       bool
	Logger                logger.Logger
}

var DefaultServerOption = ServerOption{
	Handler: func(ctx *RequestCtx) {
		ctx.Error(StatusText(StatusNotFound), StatusNotFound)
	},
	IdleTimeout:           time.Second * 10,
	MaxIdleWorkerDuration: time.Minute * 1,
	TCPKeepalivePeriod:    time.Minute * 120, // linux default
	MaxRequestBodySize:    256 * 1024,
	RequestTimeout:        time.Second * 5,
	ReadBufferSize:        1024 * 4, // also, max header size
	WriteBufferSize:       1024 * 4,
	ReadTimeout:           time.Millisecond * 2500,
	WriteTimeout:          time.Millisecond * 2500,
	Concurrency:           1_000,
	MaxConnsPerIP:         100,
	ErrorHandler: func(ctx *RequestCtx, err error) {
		ctx.Logger().Printf("[xhttp] error: %s", err)
	},
	DisableKeepalive:      false,
	TCPKeepalive:          true,
	LogAllErrors:          true,
	NoDefaultServerHeader: true,
	NoDefaultDate:         true,
	NoDefaultContentType:  true,
	CloseOnShutdown:       true,
	Logger:                logger.GetLogger(),
}

type Engine struct {
	*Router
	*Server
	option ServerOption
	middle []MiddlewareFunc
}

func newServer(options ServerOption) *fasthttp.Server {
	return &fasthttp.Server{
		Handler:               options.Handler,
		ErrorHandler:          options.ErrorHandler,
		Name:                  options.Name,
		Concurrency:           options.Concurrency,
		ReadBufferSize:        options.ReadBufferSize,
		WriteBufferSize:       options.WriteBufferSize,
		ReadTimeout:           options.ReadTimeout,
		WriteTimeout:          options.WriteTimeout,
		IdleTimeout:           options.IdleTimeout,
		MaxConnsPerIP:         options.MaxConnsPerIP,
		MaxIdleWorkerDuration: options.MaxIdleWorkerDuration,
		TCPKeepalivePeriod:    options.TCPKeepalivePeriod,
		MaxRequestBodySize:    options.MaxRequestBodySize,
		DisableKeepalive:      options.DisableKeepalive,
		TCPKeepalive:          options.TCPKeepalive,
		LogAllErrors:          options.LogAllErrors,
		NoDefaultServerHeader: options.NoDefaultServerHeader,
		NoDefaultDate:         options.NoDefaultDate,
		NoDefaultContentType:  options.NoDefaultContentType,
		CloseOnShutdown:       options.CloseOnShutdown,
		Logger:                options.Logger,
	}
}

func NewServer(options ServerOption) *Engine {
	return &Engine{
		Server: newServer(options),
		Router: NewRouter(),
		option: options,
	}
}

func CreateServer() *Engine {
	s := NewServer(DefaultServerOption)
	s.Router = CreateDefaultRouter()
	s.Server.Logger = logger.GetLogger()
	return s
}

func (e *Engine) ListenAndServe(addr string) error {
	err := e.DoRouting()
	if err != nil {
		return err
	}
	e.Server.Logger.Printf("[xhttp] server is listening on %s", addr)
	if err := e.Server.ListenAndServe(addr); err != nil {
		return err
	}
	return nil
}

func (e *Engine) DoRouting() error {
	// log all registered routes grouped by method
	for method, route := range e.Router.List() {
		for _, r := range route {
			e.Server.Logger.Printf("[xhttp] method: %s, path: %s", method, r)
		}
	}
	e.Server.Handler = e.Router.Handler
	// reverse the middlewares so the first one registered
	// is the outermost wrapper
	slices.Reverse(e.middle)
	for i, m := range e.middle {
		e.Server.Handler = m(e.Server.Handler)
		e.Server.Logger.Printf("[xhttp] middleware %d registered - %s", i+1, runtime.FuncForPC(reflect.ValueOf(m).Pointer()).Name())
	}
	return nil
}

func (e *Engine) CloseOnSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig
		e.Shutdown()
	}()
}

// Use adds middleware to the chain which is run for every request.
func (e *Engine) Use(middleware MiddlewareFunc) {
	e.middle = append(e.middle, middleware)
}

// Shutdown gracefully shuts down the server without interrupting any
// active connections.
func (e *Engine) Shutdown() {
	e.Server.Logger.Printf("[xhttp] server is shutting down, process id: %d", os.Getpid())
	e.Server.Logger.Printf("[xhttp] closing all connections..")
	err := e.Server.Shutdown()
	if err != nil {
		e.Server.Logger.Printf("[xhttp] error while shutting down: %v", err)
	}
}
