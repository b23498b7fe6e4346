// Package notify posts job outcomes to chat platforms (Slack, Discord, etc.).
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/calebt/typeset/internal/models"
)

// Event is a finished conversion summarized for a chat channel.
type Event struct {
	JobID      string
	Identifier string
	Module     string
	Status     string
	Message    string
	Output     string
	Errors     []string
	Warnings   []string
}

// EventFromJob builds the notification for a finalized job.
func EventFromJob(job *models.Job) Event {
	return Event{
		JobID:      job.JobID,
		Identifier: job.Identifier,
		Module:     job.ConvertModule,
		Status:     job.Status,
		Message:    job.Message,
		Output:     job.Output,
		Errors:     job.Errors,
		Warnings:   job.Warnings,
	}
}

// Title is the event headline, e.g. "Conversion failed: owner/repo/abc123".
func (e Event) Title() string {
	label := "Conversion succeeded"
	switch e.Status {
	case models.StatusFailed:
		label = "Conversion failed"
	case models.StatusWarnings:
		label = "Conversion finished with warnings"
	}
	if e.Identifier == "" {
		return label
	}
	return label + ": " + e.Identifier
}

// Body is the detail text below the headline.
func (e Event) Body() string {
	var b strings.Builder
	if e.Module != "" {
		fmt.Fprintf(&b, "Converter: %s\n", e.Module)
	}
	if len(e.Errors) > 0 {
		fmt.Fprintf(&b, "Errors: %s\n", strings.Join(e.Errors, "; "))
	}
	if len(e.Warnings) > 0 {
		fmt.Fprintf(&b, "Warnings: %d\n", len(e.Warnings))
	}
	if e.Output != "" && e.Status != models.StatusFailed {
		fmt.Fprintf(&b, "Output: %s\n", e.Output)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Color returns a sidebar color hint for the event.
func (e Event) Color() string {
	switch e.Status {
	case models.StatusFailed:
		return "#cf222e"
	case models.StatusWarnings:
		return "#daa038"
	default:
		return "#36a64f"
	}
}

// Notifier delivers events to one platform.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Multi fans one event out to several notifiers. Delivery failures are
// logged, not propagated; a chat outage never fails a conversion.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, evt Event) error {
	for _, n := range m {
		if err := n.Notify(ctx, evt); err != nil {
			log.Printf("notify: %v", err)
		}
	}
	return nil
}
