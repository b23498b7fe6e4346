package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/calebt/typeset/internal/models"
)

// DefaultMaxFailures bounds the recent-failures table when the caller
// does not say otherwise.
const DefaultMaxFailures = 10

// ModuleSummary is one converter's row in the report: its registration
// plus counts of the jobs it has handled, bucketed by outcome.
type ModuleSummary struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	InputFormat   string   `json:"input_format"`
	OutputFormat  string   `json:"output_format"`
	ResourceTypes []string `json:"resource_types"`
	Version       int      `json:"version"`

	JobsSuccess int64 `json:"jobs_success"`
	JobsWarning int64 `json:"jobs_warning"`
	JobsFailure int64 `json:"jobs_failure"`
	JobsTotal   int64 `json:"jobs_total"`
}

// FailureRow is one recently failed job with enough context to chase
// it down.
type FailureRow struct {
	JobID        string    `json:"job_id"`
	Identifier   string    `json:"identifier"`
	ResourceType string    `json:"resource_type"`
	CreatedAt    time.Time `json:"created_at"`
	Source       string    `json:"source"`
	Output       string    `json:"output"`
	BuildLog     string    `json:"build_log"`
	Errors       []string  `json:"errors"`
}

// Report is the aggregated read-side view of the conversion system.
type Report struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Modules     []ModuleSummary `json:"modules"`

	TotalJobs        int64 `json:"total_jobs"`
	TotalSuccess     int64 `json:"total_success"`
	TotalWarning     int64 `json:"total_warning"`
	TotalFailure     int64 `json:"total_failure"`
	UnregisteredJobs int64 `json:"unregistered_jobs"`

	Failures []FailureRow `json:"failures"`
}

// Reporter builds reports from the live job and module tables.
type Reporter struct {
	db     *gorm.DB
	cdnURL string
	now    func() time.Time
}

// NewReporter returns a Reporter reading from db. cdnURL is used to
// form build log links for failed jobs.
func NewReporter(db *gorm.DB, cdnURL string) (*Reporter, error) {
	if db == nil {
		return nil, fmt.Errorf("dashboard: db is required")
	}
	return &Reporter{db: db, cdnURL: strings.TrimRight(cdnURL, "/"), now: time.Now}, nil
}

// Generate walks all registered modules and all jobs and produces the
// report. maxFailures bounds the failures table; zero or negative
// means DefaultMaxFailures.
func (r *Reporter) Generate(maxFailures int) (*Report, error) {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}

	var modules []models.Module
	if err := r.db.Order("name ASC").Find(&modules).Error; err != nil {
		return nil, fmt.Errorf("dashboard: load modules: %w", err)
	}

	var jobs []models.Job
	if err := r.db.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("dashboard: load jobs: %w", err)
	}

	report := &Report{GeneratedAt: r.now().UTC()}

	byModule := make(map[string]*ModuleSummary, len(modules))
	for _, m := range modules {
		report.Modules = append(report.Modules, ModuleSummary{
			Name:          m.Name,
			Type:          m.Type,
			InputFormat:   m.InputFormat,
			OutputFormat:  m.OutputFormat,
			ResourceTypes: m.ResourceTypes,
			Version:       m.Version,
		})
		byModule[m.Name] = &report.Modules[len(report.Modules)-1]
	}

	var attributable int64
	for _, job := range jobs {
		report.TotalJobs++
		summary := byModule[job.ConvertModule]
		if summary != nil {
			attributable++
			summary.JobsTotal++
		}
		switch classify(&job) {
		case models.StatusFailed:
			report.TotalFailure++
			if summary != nil {
				summary.JobsFailure++
			}
		case models.StatusWarnings:
			report.TotalWarning++
			if summary != nil {
				summary.JobsWarning++
			}
		default:
			report.TotalSuccess++
			if summary != nil {
				summary.JobsSuccess++
			}
		}
	}
	report.UnregisteredJobs = report.TotalJobs - attributable

	report.Failures = recentFailures(jobs, maxFailures, r.cdnURL)
	return report, nil
}

// classify buckets a job by its recorded output rather than its
// transient status, so in-flight jobs with errors already count as
// failures.
func classify(job *models.Job) string {
	if len(job.Errors) > 0 {
		return models.StatusFailed
	}
	if len(job.Warnings) > 0 {
		return models.StatusWarnings
	}
	return models.StatusSuccess
}

// recentFailures returns the newest failed jobs, newest first.
func recentFailures(jobs []models.Job, max int, cdnURL string) []FailureRow {
	var failed []models.Job
	for _, job := range jobs {
		if classify(&job) == models.StatusFailed {
			failed = append(failed, job)
		}
	}
	sort.Slice(failed, func(i, j int) bool {
		return failed[i].CreatedAt.After(failed[j].CreatedAt)
	})
	if len(failed) > max {
		failed = failed[:max]
	}

	rows := make([]FailureRow, len(failed))
	for i, job := range failed {
		rows[i] = FailureRow{
			JobID:        job.JobID,
			Identifier:   job.Identifier,
			ResourceType: job.ResourceType,
			CreatedAt:    job.CreatedAt,
			Source:       job.Source,
			Output:       job.Output,
			Errors:       job.Errors,
		}
		if job.Identifier != "" && cdnURL != "" {
			rows[i].BuildLog = fmt.Sprintf("%s/%s", cdnURL, buildLogKey(job.Identifier))
		}
	}
	return rows
}

// buildLogKey maps a job identifier to its deployed build log. Part
// jobs (owner/repo/commit/N/i/book) log under the commit key with an
// index prefix rather than under their own identifier.
func buildLogKey(identifier string) string {
	parts := strings.Split(identifier, "/")
	if len(parts) == 6 {
		return fmt.Sprintf("u/%s/%s/%s/%s_build_log.json", parts[0], parts[1], parts[2], parts[4])
	}
	return fmt.Sprintf("u/%s/build_log.json", identifier)
}
