package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"morgonpodd/internal/logging"
)

// ServerConfig holds HTTP server timeouts.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the preview server defaults for addr.
func DefaultServerConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:         addr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
}

// NewServer creates the gin engine with all preview routes.
func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(requestLogger(handler.logger))
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/", handler.Index)
	r.GET("/health", handler.Health)
	r.GET("/feed.xml", handler.Feed)
	r.HEAD("/feed.xml", handler.Feed)
	r.GET("/media/*key", handler.Media)
	r.HEAD("/media/*key", handler.Media)

	v1 := r.Group("/api")
	{
		v1.GET("/episodes", handler.ListEpisodes)
		v1.GET("/episodes/:id", handler.GetEpisode)
		v1.GET("/runs", handler.ListRuns)
		v1.GET("/runs/:id", handler.GetRun)
	}

	r.GET("/favicon.ico", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

// Serve runs the engine until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, cfg ServerConfig, engine http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("preview server listening",
			logging.String(logging.FieldEventType, "server_start"),
			logging.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("preview server stopped", logging.String(logging.FieldEventType, "server_stop"))
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		attrs := []logging.Attr{
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(start)),
			logging.String("client_ip", c.ClientIP()),
		}
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			attrs = append(attrs, logging.String("error", msg))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("http request", logging.Args(attrs...)...)
			return
		}
		logger.Debug("http request", logging.Args(attrs...)...)
	}
}
