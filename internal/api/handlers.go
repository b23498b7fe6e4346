package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calebt/typeset/internal/dispatch"
	"github.com/calebt/typeset/internal/models"
	"github.com/calebt/typeset/internal/registry"
	"github.com/calebt/typeset/internal/webhook"
)

func (s *Server) handleEndpoints(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Dispatcher.Endpoints())
}

// handleSubmitJob accepts a conversion request. The job is persisted
// synchronously; the productive work runs detached so the caller gets
// its receipt immediately.
func (s *Server) handleSubmitJob(c *gin.Context) {
	var req dispatch.SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.opts.Dispatcher.Setup(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	jobID := result.Job.JobID
	go func() {
		if _, err := s.opts.Dispatcher.Start(context.Background(), jobID); err != nil {
			log.Printf("api: start job %s: %v", jobID, err)
		}
	}()

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListJobs(c *gin.Context) {
	token := c.Query("user_token")
	filters := make(map[string]string)
	for key, vals := range c.Request.URL.Query() {
		if key == "user_token" || len(vals) == 0 {
			continue
		}
		filters[key] = vals[0]
	}

	jobs, err := s.opts.Dispatcher.ListJobs(c.Request.Context(), token, filters)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *Server) handleRegisterModule(c *gin.Context) {
	var m models.Module
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	registered, err := registry.Register(s.opts.DB, s.opts.APIURL, &m)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, registered)
}

func (s *Server) handleListModules(c *gin.Context) {
	modules, err := registry.List(s.opts.DB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, modules)
}

func (s *Server) handleWebhook(c *gin.Context) {
	if s.opts.Webhook == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook processing is not configured"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	evt, err := webhook.ParsePushEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	blog, err := s.opts.Webhook.Process(c.Request.Context(), evt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "build_log": blog})
		return
	}
	c.JSON(http.StatusOK, blog)
}

// handleCallback records a converter's completion report into the
// deployed build log for its commit.
func (s *Server) handleCallback(c *gin.Context) {
	var job models.Job
	if err := c.ShouldBindJSON(&job); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if job.Identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": `"identifier" not given`})
		return
	}
	if s.opts.CDN == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cdn store is not configured"})
		return
	}

	blog := &webhook.BuildLog{Job: job}
	if err := blog.Upload(s.opts.CDN, "u/"+job.Identifier, ""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job_id": job.JobID})
}

// statusFor maps dispatcher errors onto HTTP statuses.
func statusFor(err error) int {
	var missing *dispatch.MissingFieldError
	var noMatch *registry.NoMatchError
	switch {
	case errors.Is(err, dispatch.ErrAuth):
		return http.StatusUnauthorized
	case errors.As(err, &missing), errors.As(err, &noMatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
