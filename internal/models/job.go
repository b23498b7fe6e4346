package models

import "time"

// Job statuses. A job only ever advances from requested to started to
// one of the three terminal states.
const (
	StatusRequested = "requested"
	StatusStarted   = "started"
	StatusSuccess   = "success"
	StatusWarnings  = "warnings"
	StatusFailed    = "failed"
)

// Job is one unit of conversion work: transform a source archive from an
// input format to an output format using a registered converter module.
type Job struct {
	JobID         string       `gorm:"primaryKey;size:64" json:"job_id"`
	User          string       `gorm:"size:64;index" json:"user"`
	Identifier    string       `gorm:"size:256;index" json:"identifier"`
	ConvertModule string       `gorm:"size:64;index" json:"convert_module"`
	CreatedAt     time.Time    `gorm:"index" json:"created_at"`
	ExpiresAt     *time.Time   `json:"expires_at"`
	StartedAt     *time.Time   `json:"started_at"`
	EndedAt       *time.Time   `json:"ended_at"`
	ETA           *time.Time   `json:"eta"`
	ResourceType  string       `gorm:"size:32" json:"resource_type"`
	InputFormat   string       `gorm:"size:16" json:"input_format"`
	OutputFormat  string       `gorm:"size:16" json:"output_format"`
	Source        string       `gorm:"type:text" json:"source"`
	Output        string       `gorm:"type:text" json:"output"`
	CDNBucket     string       `gorm:"size:128" json:"cdn_bucket"`
	CDNFile       string       `gorm:"size:256" json:"cdn_file"`
	Callback      string       `gorm:"type:text" json:"callback"`
	Links         []Link       `gorm:"serializer:json;type:json" json:"links"`
	Status        string       `gorm:"size:16;default:requested;index" json:"status"`
	Success       *bool        `json:"success"`
	Message       string       `gorm:"type:text" json:"message"`
	Log           []string     `gorm:"serializer:json;type:json" json:"log"`
	Warnings      []string     `gorm:"serializer:json;type:json" json:"warnings"`
	Errors        []string     `gorm:"serializer:json;type:json" json:"errors"`
}

// Link is a navigational pointer returned alongside job payloads.
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

// LogMessage appends a line to the job's run log.
func (j *Job) LogMessage(msg string) {
	j.Log = append(j.Log, msg)
}

// WarningMessage appends a warning to the job.
func (j *Job) WarningMessage(msg string) {
	j.Warnings = append(j.Warnings, msg)
}

// ErrorMessage appends an error to the job. A job with any error always
// finalizes as failed.
func (j *Job) ErrorMessage(msg string) {
	j.Errors = append(j.Errors, msg)
}

// Started reports whether the job has already left the requested state.
func (j *Job) Started() bool {
	return j.Status != StatusRequested || j.StartedAt != nil
}
