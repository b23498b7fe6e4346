package webhook

import (
	"encoding/json"
	"fmt"
)

// shortCommitLen is the truncated commit id used in identifiers and keys.
const shortCommitLen = 10

// pushEvent mirrors the wire shape of a Gogs/Gitea push payload; only
// the fields the controller needs are declared.
type pushEvent struct {
	After      string       `json:"after"`
	CompareURL string       `json:"compare_url"`
	Commits    []pushCommit `json:"commits"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Username string `json:"username"`
		} `json:"owner"`
	} `json:"repository"`
	Pusher struct {
		Username string `json:"username"`
	} `json:"pusher"`
}

type pushCommit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	URL     string `json:"url"`
	Author  struct {
		Username string `json:"username"`
	} `json:"author"`
}

// CommitEvent is the normalized content-commit event driving a fan-out.
type CommitEvent struct {
	Owner         string
	Repo          string
	CommitID      string // short form
	CommitMessage string
	CommitURL     string
	CompareURL    string
	Pusher        string
}

// ParsePushEvent normalizes a raw push payload into a CommitEvent.
func ParsePushEvent(body []byte) (*CommitEvent, error) {
	var evt pushEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("webhook: parse push event: %w", err)
	}
	if evt.After == "" {
		return nil, fmt.Errorf("webhook: push event has no commit id")
	}
	if evt.Repository.Name == "" || evt.Repository.Owner.Username == "" {
		return nil, fmt.Errorf("webhook: push event has no repository")
	}

	// Find the head commit's metadata.
	var head *pushCommit
	for i := range evt.Commits {
		if evt.Commits[i].ID == evt.After {
			head = &evt.Commits[i]
			break
		}
	}
	if head == nil && len(evt.Commits) > 0 {
		head = &evt.Commits[len(evt.Commits)-1]
	}
	if head == nil {
		return nil, fmt.Errorf("webhook: push event has no commits")
	}

	commitID := evt.After
	if len(commitID) > shortCommitLen {
		commitID = commitID[:shortCommitLen]
	}

	pusher := evt.Pusher.Username
	if pusher == "" {
		pusher = head.Author.Username
	}

	return &CommitEvent{
		Owner:         evt.Repository.Owner.Username,
		Repo:          evt.Repository.Name,
		CommitID:      commitID,
		CommitMessage: head.Message,
		CommitURL:     head.URL,
		CompareURL:    evt.CompareURL,
		Pusher:        pusher,
	}, nil
}

// Identifier builds the master identifier for this commit.
func (e *CommitEvent) Identifier() string {
	return fmt.Sprintf("%s/%s/%s", e.Owner, e.Repo, e.CommitID)
}

// PartIdentifier builds the identifier for one sub-document of a
// multi-part commit.
func (e *CommitEvent) PartIdentifier(count, part int, book string) string {
	return fmt.Sprintf("%s/%s/%s/%d/%d/%s", e.Owner, e.Repo, e.CommitID, count, part, book)
}
