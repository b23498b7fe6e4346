// Package api exposes the conversion system over HTTP: job submission
// and listing, converter registration, the webhook entry point, the
// converter callback, and the dashboard.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/calebt/typeset/internal/dashboard"
	"github.com/calebt/typeset/internal/dispatch"
	"github.com/calebt/typeset/internal/storage"
	"github.com/calebt/typeset/internal/webhook"
)

// Opts holds the collaborators for the API server.
type Opts struct {
	DB         *gorm.DB
	Dispatcher *dispatch.Dispatcher
	Webhook    *webhook.Controller
	Reporter   *dashboard.Reporter
	CDN        storage.Store
	APIURL     string
	Port       int
	Out        io.Writer
}

// Server is the public HTTP surface.
type Server struct {
	opts   Opts
	router *gin.Engine
}

// New builds the server and its routes.
func New(opts Opts) (*Server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("api: db is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("api: dispatcher is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{opts: opts, router: router}
	s.registerRoutes()

	if opts.Reporter != nil {
		if err := dashboard.Mount(router, opts.Reporter); err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
	}
	return s, nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.opts.Port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if s.opts.Out != nil {
		fmt.Fprintf(s.opts.Out, "API listening on http://localhost:%d\n", s.opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes() {
	tx := s.router.Group("/tx")
	{
		tx.GET("", s.handleEndpoints)
		tx.POST("/job", s.handleSubmitJob)
		tx.GET("/job", s.handleListJobs)
		tx.POST("/module", s.handleRegisterModule)
		tx.GET("/module", s.handleListModules)
	}

	client := s.router.Group("/client")
	{
		client.POST("/webhook", s.handleWebhook)
		client.POST("/callback", s.handleCallback)
	}
}
