// Package client runs sources against a remote event-comb server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/event-comb/app/api"
	"github.com/lysyi3m/event-comb/app/source"
	"github.com/lysyi3m/event-comb/app/tasks"
)

const (
	DefaultTimeout = 40 * time.Second

	MsgRequestTimeout = "request timeout"
	MsgRequestFailure = "request failure"

	maxResponseBytes = 10 << 20
)

// RemoteTask executes a source by calling POST /search-source on a remote
// server. Its timeout only bounds how long the caller waits: the server keeps
// its own fetch and extraction budgets.
type RemoteTask struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

var _ tasks.Executor = (*RemoteTask)(nil)

func NewRemoteTask(baseURL string, timeout time.Duration) *RemoteTask {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &RemoteTask{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Execute never returns an error: every transport problem becomes a soft
// warning so that one unreachable call cannot fail a run.
func (r *RemoteTask) Execute(ctx context.Context, src source.Descriptor) tasks.Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reqBody, err := json.Marshal(api.SearchSourceRequest{
		SourceName: src.DisplayName,
		URL:        src.Target,
		Mode:       src.Mode.String(),
	})
	if err != nil {
		return tasks.SoftWarning(MsgRequestFailure)
	}

	var resp api.SearchSourceResponse
	if err := r.post(ctx, "/search-source", reqBody, &resp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("Remote source timed out", "source", src.ID, "timeout", r.timeout)
			return tasks.SoftWarning(MsgRequestTimeout)
		}
		slog.Warn("Remote source failed", "source", src.ID, "error", err)
		return tasks.SoftWarning(MsgRequestFailure)
	}

	var outcome tasks.Outcome
	switch {
	case resp.Error != "":
		outcome = tasks.HardError(resp.Error)
	case resp.Warning != "":
		outcome = tasks.SoftWarning(resp.Warning)
	default:
		outcome = tasks.Success(resp.Events)
	}

	return outcome.WithDebug(resp.Debug)
}

// Health fetches GET /health from the remote server.
func (r *RemoteTask) Health(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var health map[string]any
	if err := r.do(req, &health); err != nil {
		return nil, err
	}
	return health, nil
}

func (r *RemoteTask) post(ctx context.Context, path string, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return r.do(req, result)
}

func (r *RemoteTask) do(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}
