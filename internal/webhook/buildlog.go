package webhook

import (
	"fmt"

	"github.com/calebt/typeset/internal/models"
	"github.com/calebt/typeset/internal/storage"
)

// BuildLog is the externally visible report of one commit's (or one
// part's) conversion: the job record merged with commit metadata.
type BuildLog struct {
	models.Job

	RepoName      string `json:"repo_name"`
	RepoOwner     string `json:"repo_owner"`
	CommitID      string `json:"commit_id"`
	CommittedBy   string `json:"committed_by"`
	CommitURL     string `json:"commit_url"`
	CompareURL    string `json:"compare_url"`
	CommitMessage string `json:"commit_message"`

	// Part fields, set only for one book of a multi-part commit.
	Book string `json:"book,omitempty"`
	Part string `json:"part,omitempty"`

	// Aggregate fields, set only on the commit-level report of a
	// multi-part conversion.
	Multiple  bool        `json:"multiple,omitempty"`
	BuildLogs []*BuildLog `json:"build_logs,omitempty"`
}

// NewBuildLog merges a job record with the commit metadata.
func NewBuildLog(job *models.Job, evt *CommitEvent) *BuildLog {
	return &BuildLog{
		Job:           *job,
		RepoName:      evt.Repo,
		RepoOwner:     evt.Owner,
		CommitID:      evt.CommitID,
		CommittedBy:   evt.Pusher,
		CommitURL:     evt.CommitURL,
		CompareURL:    evt.CompareURL,
		CommitMessage: evt.CommitMessage,
	}
}

// Upload writes the report under <commitKey>/<prefix>build_log.json.
func (b *BuildLog) Upload(cdn storage.Store, commitKey, prefix string) error {
	key := fmt.Sprintf("%s/%sbuild_log.json", commitKey, prefix)
	if err := storage.PutJSON(cdn, key, b); err != nil {
		return fmt.Errorf("webhook: upload build log %s: %w", key, err)
	}
	return nil
}
