// Package dispatch owns the conversion job lifecycle: request intake,
// idempotent start, converter invocation and result recording.
package dispatch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/calebt/typeset/internal/identity"
	"github.com/calebt/typeset/internal/models"
	"github.com/calebt/typeset/internal/notify"
	"github.com/calebt/typeset/internal/registry"
	"gorm.io/gorm"
)

// ErrAuth is returned when a caller token does not resolve to a user.
var ErrAuth = errors.New("dispatch: invalid user token, user not found")

// MissingFieldError reports a required request field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf(`"%s" not given`, e.Field)
}

// Opts holds the collaborators and settings for a Dispatcher.
type Opts struct {
	DB        *gorm.DB
	Resolver  identity.Resolver
	Invoker   Invoker
	APIURL    string
	CDNURL    string
	CDNBucket string // process-wide default output bucket
	// Notifier, when set, is told about every finalized job.
	Notifier notify.Notifier
	// CallbackClient overrides the HTTP client used for callback
	// delivery.
	CallbackClient *http.Client
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Dispatcher creates, starts and finalizes conversion jobs.
type Dispatcher struct {
	db        *gorm.DB
	resolver  identity.Resolver
	invoker   Invoker
	apiURL    string
	cdnURL    string
	cdnBucket string
	notifier  notify.Notifier
	callbacks *http.Client
	now       func() time.Time
}

// New creates a Dispatcher.
func New(opts Opts) (*Dispatcher, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("dispatch: db is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("dispatch: identity resolver is required")
	}
	if opts.Invoker == nil {
		return nil, fmt.Errorf("dispatch: worker invoker is required")
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	callbacks := opts.CallbackClient
	if callbacks == nil {
		callbacks = callbackClient
	}
	return &Dispatcher{
		db:        opts.DB,
		resolver:  opts.Resolver,
		invoker:   opts.Invoker,
		apiURL:    opts.APIURL,
		cdnURL:    opts.CDNURL,
		cdnBucket: opts.CDNBucket,
		notifier:  opts.Notifier,
		callbacks: callbacks,
		now:       now,
	}, nil
}

// SetupRequest is a job submission.
type SetupRequest struct {
	Token        string `json:"user_token"`
	Identifier   string `json:"identifier"`
	ResourceType string `json:"resource_type"`
	InputFormat  string `json:"input_format"`
	OutputFormat string `json:"output_format"`
	Source       string `json:"source"`
	CDNBucket    string `json:"cdn_bucket"`
	Callback     string `json:"callback"`
}

// SetupResult is the accepted job plus navigational links.
type SetupResult struct {
	Job   *models.Job   `json:"job"`
	Links []models.Link `json:"links"`
}

// Setup validates a submission, checks that a converter exists for the
// requested triple, and persists a new job in the requested state. The
// job is not dispatched here; Start performs the productive transition.
func (d *Dispatcher) Setup(ctx context.Context, req SetupRequest) (*SetupResult, error) {
	if req.Token == "" {
		return nil, &MissingFieldError{Field: "user_token"}
	}
	user, err := d.resolver.ResolveToken(ctx, req.Token)
	if err != nil || user == nil || user.Username == "" {
		return nil, ErrAuth
	}

	cdnBucket := req.CDNBucket
	if cdnBucket == "" {
		cdnBucket = d.cdnBucket
	}
	if cdnBucket == "" {
		return nil, &MissingFieldError{Field: "cdn_bucket"}
	}
	if req.Source == "" {
		return nil, &MissingFieldError{Field: "source"}
	}
	if req.ResourceType == "" {
		return nil, &MissingFieldError{Field: "resource_type"}
	}
	if req.InputFormat == "" {
		return nil, &MissingFieldError{Field: "input_format"}
	}
	if req.OutputFormat == "" {
		return nil, &MissingFieldError{Field: "output_format"}
	}

	job := &models.Job{
		User:         user.Username,
		Identifier:   req.Identifier,
		ResourceType: req.ResourceType,
		InputFormat:  req.InputFormat,
		OutputFormat: req.OutputFormat,
		Source:       req.Source,
		CDNBucket:    cdnBucket,
		Callback:     req.Callback,
	}

	// Confirm a converter exists before accepting the job. The module
	// name is recorded at start time, when resolution runs again.
	if _, err := registry.Resolve(d.db, job); err != nil {
		return nil, err
	}

	createdAt := d.now()
	expiresAt := createdAt.Add(24 * time.Hour)
	eta := createdAt.Add(20 * time.Second)
	job.CreatedAt = createdAt
	job.ExpiresAt = &expiresAt
	job.ETA = &eta
	job.Status = models.StatusRequested
	job.Message = "Conversion requested..."
	job.JobID = jobID(user.Username, user.Email, createdAt)

	// All conversions result in a ZIP of the converted files.
	outputFile := fmt.Sprintf("tx/job/%s.zip", job.JobID)
	job.Output = fmt.Sprintf("%s/%s", d.cdnURL, outputFile)
	job.CDNFile = outputFile
	job.Links = []models.Link{
		{Href: fmt.Sprintf("%s/tx/job/%s", d.apiURL, job.JobID), Rel: "self", Method: "GET"},
	}

	if err := d.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("dispatch: persist job: %w", err)
	}

	return &SetupResult{
		Job: job,
		Links: []models.Link{
			{Href: d.apiURL + "/tx/job", Rel: "list", Method: "GET"},
			{Href: d.apiURL + "/tx/job", Rel: "create", Method: "POST"},
		},
	}, nil
}

// jobID derives the job key from the submitting user and the creation
// instant. Two submissions by the same user in the same nanosecond
// collide; that is the extent of the dedup guarantee.
func jobID(username, email string, createdAt time.Time) string {
	seed := fmt.Sprintf("%s-%s-%s", username, email, createdAt.Format(time.RFC3339Nano))
	return fmt.Sprintf("%x", sha256.Sum256([]byte(seed)))
}

// Start performs the single productive transition out of requested:
// marks the job started, invokes the resolved converter once, records
// the outcome and delivers the callback. Calling Start again for the
// same job id returns the stored record without re-dispatching.
func (d *Dispatcher) Start(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := d.loadJob(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		// Observable terminal record rather than an error, so async
		// triggers can log the outcome like any other.
		success := false
		return &models.Job{
			JobID:   jobID,
			Success: &success,
			Message: fmt.Sprintf("No job with ID %s has been requested", jobID),
		}, nil
	}

	if job.Started() {
		return job, nil
	}

	startedAt := d.now()
	// Conditional write closes the race between concurrent Start calls:
	// only one caller moves the job from requested to started.
	claim := d.db.Model(&models.Job{}).
		Where("job_id = ? AND status = ? AND started_at IS NULL", job.JobID, models.StatusRequested).
		Updates(map[string]interface{}{
			"status":     models.StatusStarted,
			"started_at": startedAt,
			"message":    "Conversion started...",
		})
	if claim.Error != nil {
		return nil, fmt.Errorf("dispatch: claim job %s: %w", job.JobID, claim.Error)
	}
	if claim.RowsAffected == 0 {
		// Lost the race; somebody else is running it.
		return d.mustLoadJob(job.JobID)
	}

	job.Status = models.StatusStarted
	job.StartedAt = &startedAt
	job.Message = "Conversion started..."
	job.LogMessage(fmt.Sprintf("Started job %s at %s", job.JobID, startedAt.Format(time.RFC3339)))

	d.runConversion(ctx, job)

	endedAt := d.now()
	job.EndedAt = &endedAt
	d.finalize(job)
	job.LogMessage(job.Message)
	job.LogMessage(fmt.Sprintf("Finished job %s at %s", job.JobID, endedAt.Format(time.RFC3339)))

	if err := d.db.Save(job).Error; err != nil {
		return nil, fmt.Errorf("dispatch: save job %s: %w", job.JobID, err)
	}

	if job.Callback != "" {
		d.deliverCallback(ctx, job)
	}
	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, notify.EventFromJob(job)); err != nil {
			log.Printf("dispatch: notify job %s: %v", job.JobID, err)
		}
	}

	return job, nil
}

// runConversion resolves the module and performs the worker call,
// folding every failure mode into the job record. Nothing here returns
// an error: once a job is started, failures surface only in the record.
func (d *Dispatcher) runConversion(ctx context.Context, job *models.Job) {
	module, err := registry.Resolve(d.db, job)
	if err != nil {
		job.ErrorMessage(err.Error())
		return
	}

	job.ConvertModule = module.Name
	if err := d.db.Save(job).Error; err != nil {
		job.ErrorMessage(fmt.Sprintf("Failed with message: %s", err))
		return
	}

	if len(module.PublicLinks) == 0 {
		job.ErrorMessage(fmt.Sprintf("module %s has no public invocation link", module.Name))
		return
	}

	job.LogMessage(fmt.Sprintf("Telling module %s to convert %s and put at %s",
		module.Name, job.Source, job.Output))

	result, err := d.invoker.Invoke(ctx, module.PublicLinks[0], WorkerPayload{Job: job})
	if err != nil {
		job.ErrorMessage(fmt.Sprintf("Failed with message: %s", err))
		return
	}

	switch res := result.(type) {
	case WorkerSuccess:
		for _, msg := range res.Info {
			if msg != "" {
				job.LogMessage(msg)
			}
		}
		for _, msg := range res.Errors {
			if msg != "" {
				job.ErrorMessage(msg)
			}
		}
		for _, msg := range res.Warnings {
			if msg != "" {
				job.WarningMessage(msg)
			}
		}
		switch {
		case len(res.Errors) > 0:
			job.LogMessage(fmt.Sprintf("%s function returned with errors.", module.Name))
		case len(res.Warnings) > 0:
			job.LogMessage(fmt.Sprintf("%s function returned with warnings.", module.Name))
		default:
			job.LogMessage(fmt.Sprintf("%s function returned.", module.Name))
		}
	case WorkerFault:
		job.ErrorMessage(res.Message)
	case WorkerMalformed:
		job.ErrorMessage(fmt.Sprintf("%s failed for unknown reason: %s", module.Name, res.Raw))
	}
}

// finalize computes the terminal status from the accumulated record.
func (d *Dispatcher) finalize(job *models.Job) {
	t, f := true, false
	switch {
	case len(job.Errors) > 0:
		job.Status = models.StatusFailed
		job.Success = &f
		job.Message = "Conversion failed"
	case len(job.Warnings) > 0:
		job.Status = models.StatusWarnings
		job.Success = &t
		job.Message = "Conversion successful with warnings"
	default:
		job.Status = models.StatusSuccess
		job.Success = &t
		job.Message = "Conversion successful"
	}
}

// loadJob returns the job or nil when it does not exist.
func (d *Dispatcher) loadJob(jobID string) (*models.Job, error) {
	var job models.Job
	err := d.db.Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dispatch: load job %s: %w", jobID, err)
	}
	return &job, nil
}

func (d *Dispatcher) mustLoadJob(jobID string) (*models.Job, error) {
	job, err := d.loadJob(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("dispatch: job %s disappeared", jobID)
	}
	return job, nil
}

// ListJobs returns job records matching the given field filters. The
// token must resolve to a known user; results are scoped to that user.
func (d *Dispatcher) ListJobs(ctx context.Context, token string, filters map[string]string) ([]models.Job, error) {
	if token == "" {
		return nil, &MissingFieldError{Field: "user_token"}
	}
	user, err := d.resolver.ResolveToken(ctx, token)
	if err != nil || user == nil || user.Username == "" {
		return nil, ErrAuth
	}

	q := d.db.Where("user = ?", user.Username)
	for field, value := range filters {
		switch field {
		case "status", "identifier", "convert_module", "resource_type", "input_format", "output_format":
			q = q.Where(field+" = ?", value)
		}
	}

	var jobs []models.Job
	if err := q.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("dispatch: list jobs: %w", err)
	}
	return jobs, nil
}

// Endpoints describes the public job API surface.
func (d *Dispatcher) Endpoints() map[string]interface{} {
	return map[string]interface{}{
		"version": "1",
		"links": []models.Link{
			{Href: d.apiURL + "/tx/job", Rel: "list", Method: "GET"},
			{Href: d.apiURL + "/tx/job", Rel: "create", Method: "POST"},
		},
	}
}
