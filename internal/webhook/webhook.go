package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/calebt/typeset/internal/dispatch"
	"github.com/calebt/typeset/internal/models"
	"github.com/calebt/typeset/internal/storage"
)

// Opts configures a Controller.
type Opts struct {
	Dispatcher    *dispatch.Dispatcher
	CDN           storage.Store
	Preconvert    storage.Store
	Preprocessors *PreprocessorTable

	// APIURL is the public base of this service, used for callbacks.
	APIURL string
	// GitURL is the base of the git host, used for repo links.
	GitURL string
	// SourceURLBase is where uploaded preconvert archives are served
	// from; job sources are formed under it.
	SourceURLBase string
	// Token authenticates webhook-initiated jobs with the dispatcher.
	Token string

	// Fetch acquires the commit tree. Defaults to FetchArchive.
	Fetch FetchFunc
}

// Controller turns a push event into one conversion job, or one job
// per book for resources too large to convert in a single pass.
type Controller struct {
	dispatcher    *dispatch.Dispatcher
	cdn           storage.Store
	preconvert    storage.Store
	preprocessors *PreprocessorTable
	apiURL        string
	gitURL        string
	sourceBase    string
	token         string
	fetch         FetchFunc
}

func New(opts Opts) (*Controller, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("webhook: dispatcher is required")
	}
	if opts.CDN == nil || opts.Preconvert == nil {
		return nil, errors.New("webhook: cdn and preconvert stores are required")
	}
	if opts.Preprocessors == nil {
		opts.Preprocessors = NewPreprocessorTable()
	}
	if err := opts.Preprocessors.Validate(); err != nil {
		return nil, err
	}
	if opts.Fetch == nil {
		opts.Fetch = FetchArchive
	}
	return &Controller{
		dispatcher:    opts.Dispatcher,
		cdn:           opts.CDN,
		preconvert:    opts.Preconvert,
		preprocessors: opts.Preprocessors,
		apiURL:        strings.TrimRight(opts.APIURL, "/"),
		gitURL:        strings.TrimRight(opts.GitURL, "/"),
		sourceBase:    strings.TrimRight(opts.SourceURLBase, "/"),
		token:         opts.Token,
		fetch:         opts.Fetch,
	}, nil
}

// Process stages the pushed commit, preprocesses it, uploads the
// conversion input, and runs the resulting job or jobs to completion.
// The returned build log is the whole-commit report; if any job
// finished with errors they are also joined into the returned error.
func (c *Controller) Process(ctx context.Context, evt *CommitEvent) (*BuildLog, error) {
	staging, err := os.MkdirTemp("", "typeset-webhook-")
	if err != nil {
		return nil, fmt.Errorf("webhook: create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	repoDir := filepath.Join(staging, "repo")
	if err := c.fetch(ctx, evt.CommitURL, repoDir); err != nil {
		return nil, err
	}

	res, err := DetectResource(repoDir)
	if err != nil {
		return nil, err
	}
	pre, err := c.preprocessors.Lookup(res.Type)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(staging, "output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("webhook: create output dir: %w", err)
	}
	result, err := pre.Run(repoDir, outDir, res)
	if err != nil {
		return nil, fmt.Errorf("webhook: preprocess %s/%s: %w", evt.Owner, evt.Repo, err)
	}

	archive, err := ZipTree(outDir)
	if err != nil {
		return nil, err
	}
	fileKey := "preconvert/" + evt.CommitID + ".zip"
	if err := c.preconvert.Upload(fileKey, archive); err != nil {
		return nil, fmt.Errorf("webhook: upload %s: %w", fileKey, err)
	}
	sourceURL := c.sourceBase + "/" + fileKey

	if !result.Multiple() {
		return c.processSingle(ctx, evt, res, sourceURL)
	}
	return c.processMultiple(ctx, evt, res, sourceURL, result.Books)
}

func (c *Controller) processSingle(ctx context.Context, evt *CommitEvent, res *Resource, sourceURL string) (*BuildLog, error) {
	commitKey := "u/" + evt.Identifier()
	if err := storage.DeletePrefix(c.cdn, commitKey); err != nil {
		log.Printf("webhook: clear %s: %v", commitKey, err)
	}

	job := c.submitJob(ctx, evt.Identifier(), res, sourceURL)
	if err := UpdateProjectIndex(c.cdn, c.gitURL, evt, job); err != nil {
		log.Printf("webhook: update project index: %v", err)
	}

	blog := NewBuildLog(job, evt)
	if err := blog.Upload(c.cdn, commitKey, ""); err != nil {
		log.Printf("webhook: upload build log: %v", err)
	}
	return blog, joinErrors(job.Errors)
}

func (c *Controller) processMultiple(ctx context.Context, evt *CommitEvent, res *Resource, sourceURL string, books []string) (*BuildLog, error) {
	masterKey := "u/" + evt.Identifier()
	if err := storage.DeletePrefix(c.cdn, masterKey); err != nil {
		log.Printf("webhook: clear %s: %v", masterKey, err)
	}

	count := len(books)
	var (
		jobs     []*models.Job
		partLogs []*BuildLog
		allErrs  []string
		allWarns []string
	)
	for i, book := range books {
		partSource := sourceURL + "?" + url.Values{"convert_only": {book}}.Encode()
		job := c.submitJob(ctx, evt.PartIdentifier(count, i, book), res, partSource)
		jobs = append(jobs, job)

		blog := NewBuildLog(job, evt)
		blog.Book = book
		blog.Part = strconv.Itoa(i)
		if err := blog.Upload(c.cdn, masterKey, strconv.Itoa(i)+"_"); err != nil {
			log.Printf("webhook: upload part build log: %v", err)
		}
		partLogs = append(partLogs, blog)
		allErrs = append(allErrs, job.Errors...)
		allWarns = append(allWarns, job.Warnings...)
	}

	if err := UpdateProjectIndex(c.cdn, c.gitURL, evt, jobs[0]); err != nil {
		log.Printf("webhook: update project index: %v", err)
	}

	// The whole-commit report starts from the last part and widens it
	// to cover the full archive.
	agg := NewBuildLog(jobs[count-1], evt)
	agg.Multiple = true
	agg.BuildLogs = partLogs
	agg.Source = sourceURL
	agg.Errors = allErrs
	agg.Warnings = allWarns
	if err := agg.Upload(c.cdn, masterKey, ""); err != nil {
		log.Printf("webhook: upload build log: %v", err)
	}
	return agg, joinErrors(allErrs)
}

// submitJob runs setup and start for one conversion. Failures surface
// as a failed job record so the build log still reports them.
func (c *Controller) submitJob(ctx context.Context, identifier string, res *Resource, sourceURL string) *models.Job {
	req := dispatch.SetupRequest{
		Token:        c.token,
		Identifier:   identifier,
		ResourceType: res.Type,
		InputFormat:  res.Format,
		OutputFormat: "html",
		Source:       sourceURL,
		Callback:     c.apiURL + "/client/callback",
	}
	setup, err := c.dispatcher.Setup(ctx, req)
	if err != nil {
		return failedJob(req, err)
	}
	job, err := c.dispatcher.Start(ctx, setup.Job.JobID)
	if err != nil {
		setup.Job.ErrorMessage(fmt.Sprintf("Failed to start job: %s", err))
		setup.Job.Status = models.StatusFailed
		setup.Job.Message = "Conversion failed"
		return setup.Job
	}
	return job
}

// failedJob builds an unpersisted record for a submission the
// dispatcher rejected outright.
func failedJob(req dispatch.SetupRequest, err error) *models.Job {
	now := time.Now().UTC()
	success := false
	return &models.Job{
		Identifier:   req.Identifier,
		ResourceType: req.ResourceType,
		InputFormat:  req.InputFormat,
		OutputFormat: req.OutputFormat,
		Source:       req.Source,
		Callback:     req.Callback,
		CreatedAt:    now,
		EndedAt:      &now,
		Status:       models.StatusFailed,
		Success:      &success,
		Message:      "Conversion failed",
		Errors:       []string{err.Error()},
	}
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "; "))
}
