// Package httpserver exposes the recorder over a small JSON control API.
package httpserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/longrec/internal/catalog"
	"github.com/tphakala/longrec/internal/conf"
	"github.com/tphakala/longrec/internal/errors"
	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/recorder"
)

const (
	componentName   = "httpserver"
	shutdownTimeout = 10 * time.Second
)

// Recorder is the part of *recorder.Recorder the API drives.
type Recorder interface {
	Start(path string, maxDuration time.Duration) error
	Stop() error
	IsRecording() bool
	Metadata() recorder.Metadata
	Status() recorder.Status
	LastBlock() *recorder.Block
	LastStop() (recorder.StopEvent, bool)
}

// Catalog is the read side of *catalog.Catalog.
type Catalog interface {
	Sessions(limit int) ([]catalog.Session, error)
	Session(id string) (*catalog.Session, error)
}

// Server wires the API routes onto an echo instance.
type Server struct {
	Echo     *echo.Echo
	settings *conf.Settings
	rec      Recorder
	catalog  Catalog // optional
	metrics  http.Handler
	log      logger.Logger
}

// Options carries the optional collaborators of a Server.
type Options struct {
	Catalog Catalog
	Metrics http.Handler
}

// New builds the server and registers its routes.
func New(settings *conf.Settings, rec Recorder, opts Options, log logger.Logger) *Server {
	if log == nil {
		log = logger.Global().Module(componentName)
	}
	s := &Server{
		Echo:     echo.New(),
		settings: settings,
		rec:      rec,
		catalog:  opts.Catalog,
		metrics:  opts.Metrics,
		log:      log,
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.configureMiddleware()
	s.initRoutes()
	return s
}

func (s *Server) configureMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestID())
	s.Echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogError:     true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
				logger.String("remote_ip", v.RemoteIP),
				logger.String("request_id", v.RequestID),
			}
			switch {
			case v.Status >= 500:
				s.log.Error("http request", append(fields, logger.Error(v.Error))...)
			case v.Status >= 400:
				s.log.Warn("http request", fields...)
			default:
				s.log.Debug("http request", fields...)
			}
			return nil
		},
	}))
	if token := s.settings.WebServer.APIToken; token != "" {
		s.Echo.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/metrics" || c.Path() == "/api/v1/health"
			},
			Validator: func(key string, _ echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
			},
		}))
	}
}

func (s *Server) initRoutes() {
	api := s.Echo.Group("/api/v1")
	api.GET("/health", s.health)
	api.GET("/status", s.status)
	api.GET("/metadata", s.metadata)
	api.POST("/start", s.start)
	api.POST("/stop", s.stop)
	api.GET("/live", s.live)
	if s.catalog != nil {
		api.GET("/sessions", s.listSessions)
		api.GET("/sessions/:id", s.getSession)
	}
	if s.metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.settings.WebServer.Listen
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logger.String("address", addr))
		errCh <- s.Echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return httpError(err, "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		return httpError(err, "shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return httpError(err, "listen")
	}
	s.log.Info("http server stopped")
	return nil
}

func httpError(err error, op string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryHTTP).
		Context("operation", op).
		Build()
}

