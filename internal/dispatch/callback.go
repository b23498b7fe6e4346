package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/calebt/typeset/internal/models"
)

// callbackClient bounds callback delivery separately from worker calls.
var callbackClient = &http.Client{Timeout: 30 * time.Second}

// deliverCallback POSTs the finalized job to its callback URL. Delivery
// is fire-and-forget: failures are logged and never retried, and they
// never alter the job's terminal state.
func (d *Dispatcher) deliverCallback(ctx context.Context, job *models.Job) {
	url := job.Callback
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return
	}

	body, err := json.Marshal(job)
	if err != nil {
		log.Printf("dispatch: encode callback for job %s: %v", job.JobID, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("dispatch: build callback for job %s: %v", job.JobID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.callbacks.Do(req)
	if err != nil {
		log.Printf("dispatch: callback to %s for job %s: %v", url, job.JobID, err)
		return
	}
	resp.Body.Close()
}
