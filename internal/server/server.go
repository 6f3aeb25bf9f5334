// Package server is the lab backend: the HTTP service that manages
// fuzzer containers and processes on the lab host and serves
// incremental log reads to controllers. One instance serves all three
// protocols.
package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/protoseclab/fuzzlab/internal/config"
	"github.com/protoseclab/fuzzlab/internal/logging"
)

// Server hosts the protocol-compliance API and the log stream.
type Server struct {
	cfg    config.ServerConfig
	logger *logging.Logger

	// procs maps protocol -> launch handle. A protocol has at most one
	// live fuzzer at a time.
	procs cmap.ConcurrentMap[string, *procHandle]

	// launch is swappable so tests can avoid spawning real processes.
	launch launchFunc

	engine *gin.Engine
}

// New builds a server around the given config.
func New(cfg config.ServerConfig, logger *logging.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		procs:  cmap.New[*procHandle](),
	}
	s.launch = s.launchReal

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	s.routes(engine)
	s.engine = engine
	return s
}

func (s *Server) routes(r *gin.Engine) {
	api := r.Group("/protocol-compliance")
	api.POST("/pre-start-cleanup", s.handlePreStartCleanup)
	api.POST("/write-script", s.handleWriteScript)
	api.POST("/execute-command", s.handleExecuteCommand)
	api.POST("/stop-process", s.handleStopProcess)
	api.POST("/stop-and-cleanup", s.handleStopAndCleanup)
	api.POST("/read-log", s.handleReadLog)

	r.GET("/ws/logs", s.handleLogStream)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(s.cfg.LogDir, 0o755); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	if s.logger != nil {
		s.logger.Info("lab backend listening on %s", s.cfg.Listen)
	}

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
