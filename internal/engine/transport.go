package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shiftline/attend/internal/model"
)

// RemoteStatus is the remote system's verdict on a pushed operation.
type RemoteStatus int

const (
	// RemoteAccepted means the mutation was applied; Canonical may carry
	// the remote's canonical entity state for conflict resolution.
	RemoteAccepted RemoteStatus = iota + 1

	// RemoteRejected is a business-rule rejection: non-retriable, the
	// operation is terminally failed and surfaced.
	RemoteRejected

	// RemoteTransientFailure is a network or availability failure:
	// retriable with backoff.
	RemoteTransientFailure
)

// RemoteResult is the outcome of pushing one operation.
type RemoteResult struct {
	Status    RemoteStatus
	Canonical json.RawMessage // optional, only on RemoteAccepted
	Reason    string          // only on RemoteRejected
}

// Transport is the engine-to-remote contract: one push per operation.
// A returned error is treated as a transient failure.
type Transport interface {
	Push(ctx context.Context, opType model.OperationType, entityType model.EntityType, payload json.RawMessage) (RemoteResult, error)
}

// HTTPTransport pushes operations as JSON over HTTP.
//
// Requests go to {base}/sync/{entityType}; 2xx responses are Accepted
// (a non-empty body is the canonical payload), 409 and 422 are
// business-rule Rejected, everything else is a transient failure.
type HTTPTransport struct {
	base   string
	client *http.Client
}

// NewHTTPTransport creates a transport against a remote base URL.
func NewHTTPTransport(base string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{base: base, client: client}
}

type pushRequest struct {
	OperationType model.OperationType `json:"operation_type"`
	EntityType    model.EntityType    `json:"entity_type"`
	Payload       json.RawMessage     `json:"payload,omitempty"`
}

// Push implements Transport.
func (t *HTTPTransport) Push(ctx context.Context, opType model.OperationType, entityType model.EntityType, payload json.RawMessage) (RemoteResult, error) {
	body, err := json.Marshal(pushRequest{
		OperationType: opType,
		EntityType:    entityType,
		Payload:       payload,
	})
	if err != nil {
		return RemoteResult{}, fmt.Errorf("marshal push request: %w", err)
	}

	url := fmt.Sprintf("%s/sync/%s", t.base, entityType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return RemoteResult{}, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// Network errors are transient by definition; the queue retries
		// with backoff.
		return RemoteResult{Status: RemoteTransientFailure}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		canonical, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return RemoteResult{Status: RemoteTransientFailure}, err
		}
		result := RemoteResult{Status: RemoteAccepted}
		if len(bytes.TrimSpace(canonical)) > 0 {
			result.Canonical = canonical
		}
		return result, nil

	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return RemoteResult{Status: RemoteRejected, Reason: string(bytes.TrimSpace(reason))}, nil

	default:
		return RemoteResult{Status: RemoteTransientFailure}, nil
	}
}
