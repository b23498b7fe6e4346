package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calebt/typeset/internal/models"
)

// badRequestPrefix is trimmed off worker fault messages so callers see
// the underlying reason, not the transport framing.
const badRequestPrefix = "Bad Request: "

// WorkerPayload is the body POSTed to a converter endpoint.
type WorkerPayload struct {
	Job *models.Job `json:"job"`
}

// WorkerResult is the interpreted response of a converter invocation.
// Exactly one of the three shapes applies to any response.
type WorkerResult interface {
	isWorkerResult()
}

// WorkerSuccess is a well-formed converter report.
type WorkerSuccess struct {
	Success  bool     `json:"success"`
	Info     []string `json:"info"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// WorkerFault is a converter-side exception without a report.
type WorkerFault struct {
	Message string
}

// WorkerMalformed is a response that matches neither known shape.
type WorkerMalformed struct {
	Raw string
}

func (WorkerSuccess) isWorkerResult()   {}
func (WorkerFault) isWorkerResult()     {}
func (WorkerMalformed) isWorkerResult() {}

// ParseWorkerResponse classifies a raw converter response body.
func ParseWorkerResponse(body []byte) WorkerResult {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return WorkerMalformed{Raw: string(body)}
	}

	if _, ok := probe["success"]; ok {
		var res WorkerSuccess
		if err := json.Unmarshal(body, &res); err != nil {
			return WorkerMalformed{Raw: string(body)}
		}
		return res
	}

	for _, key := range []string{"errorMessage", "message"} {
		if raw, ok := probe[key]; ok {
			var msg string
			if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
				return WorkerFault{Message: strings.TrimPrefix(msg, badRequestPrefix)}
			}
		}
	}

	return WorkerMalformed{Raw: string(body)}
}

// Invoker performs the synchronous call to a converter endpoint.
type Invoker interface {
	Invoke(ctx context.Context, url string, payload WorkerPayload) (WorkerResult, error)
}

// HTTPInvoker invokes converters over HTTP with a bounded wait. The
// underlying call has no natural bound, so the client timeout is the
// worker timeout policy.
type HTTPInvoker struct {
	Client *http.Client
}

// NewHTTPInvoker returns an invoker whose calls give up after timeout.
func NewHTTPInvoker(timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{Client: &http.Client{Timeout: timeout}}
}

// Invoke POSTs the payload as JSON and classifies the response body.
func (h *HTTPInvoker) Invoke(ctx context.Context, url string, payload WorkerPayload) (WorkerResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("dispatch: encode worker payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dispatch: build worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dispatch: invoke %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dispatch: read worker response: %w", err)
	}
	return ParseWorkerResponse(raw), nil
}
