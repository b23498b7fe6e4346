package webhook

import (
	"fmt"
	"time"

	"github.com/calebt/typeset/internal/models"
	"github.com/calebt/typeset/internal/storage"
)

// ProjectIndex is the per-repo index of converted commits, deployed as
// project.json next to the build logs.
type ProjectIndex struct {
	User    string        `json:"user"`
	Repo    string        `json:"repo"`
	RepoURL string        `json:"repo_url"`
	Commits []CommitEntry `json:"commits"`
}

// CommitEntry is one converted commit in the project index.
type CommitEntry struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Status    string     `json:"status"`
	Success   *bool      `json:"success"`
	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

// projectKey is where a repo's index lives in the cdn store.
func projectKey(owner, repo string) string {
	return fmt.Sprintf("u/%s/%s/project.json", owner, repo)
}

// UpdateProjectIndex appends or replaces this commit's entry in the
// repo's project index and writes the index back.
func UpdateProjectIndex(cdn storage.Store, gitURL string, evt *CommitEvent, job *models.Job) error {
	key := projectKey(evt.Owner, evt.Repo)

	var index ProjectIndex
	if err := storage.GetJSON(cdn, key, &index); err != nil {
		return fmt.Errorf("webhook: read project index: %w", err)
	}
	index.User = evt.Owner
	index.Repo = evt.Repo
	index.RepoURL = fmt.Sprintf("%s/%s/%s", gitURL, evt.Owner, evt.Repo)

	entry := CommitEntry{
		ID:        evt.CommitID,
		CreatedAt: job.CreatedAt,
		Status:    job.Status,
		Success:   job.Success,
		StartedAt: job.StartedAt,
		EndedAt:   job.EndedAt,
	}

	kept := index.Commits[:0]
	for _, c := range index.Commits {
		if c.ID != evt.CommitID {
			kept = append(kept, c)
		}
	}
	index.Commits = append(kept, entry)

	if err := storage.PutJSON(cdn, key, &index); err != nil {
		return fmt.Errorf("webhook: write project index: %w", err)
	}
	return nil
}
