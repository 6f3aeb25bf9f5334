// Package labapi is the typed HTTP client for the lab backend's
// protocol-compliance endpoints: container pre-cleanup, script staging,
// command execution, process/container teardown, and incremental log
// reads.
package labapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/protoseclab/fuzzlab/internal/errors"
)

// Client talks to one lab backend instance.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New creates a client for the given base URL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// CleanupResult summarizes a pre-start cleanup.
type CleanupResult struct {
	StoppedContainer string `json:"stopped_container,omitempty"`
	ClearedOutput    bool   `json:"cleared_output"`
	Message          string `json:"message,omitempty"`
}

// ExecResult is the launch handle returned by execute-command. Exactly
// one of ContainerID and PID is meaningful, depending on the protocol.
type ExecResult struct {
	ContainerID string `json:"container_id,omitempty"`
	PID         int    `json:"pid,omitempty"`
}

type writeScriptRequest struct {
	Content                 string   `json:"content"`
	Protocol                string   `json:"protocol"`
	ProtocolImplementations []string `json:"protocolImplementations,omitempty"`
}

type writeScriptResponse struct {
	Path string `json:"path"`
}

type execRequest struct {
	Protocol                string   `json:"protocol"`
	ProtocolImplementations []string `json:"protocolImplementations,omitempty"`
}

type readLogRequest struct {
	Protocol     string `json:"protocol"`
	LastPosition int64  `json:"lastPosition"`
}

// ReadLogResult carries one incremental log read. Position is the
// backend-authoritative cursor for the next read.
type ReadLogResult struct {
	Content  string `json:"content"`
	Position int64  `json:"position"`
}

// PreStartCleanup stops/removes any stale container and clears previous
// output for the protocol, ahead of a new launch.
func (c *Client) PreStartCleanup(ctx context.Context, protocol string) (*CleanupResult, error) {
	var res CleanupResult
	err := c.post(ctx, "/protocol-compliance/pre-start-cleanup",
		map[string]string{"protocol": protocol}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// WriteScript stages a launch script on the backend and returns the
// written path.
func (c *Client) WriteScript(ctx context.Context, protocol, content string, impls []string) (string, error) {
	var res writeScriptResponse
	err := c.post(ctx, "/protocol-compliance/write-script",
		writeScriptRequest{Content: content, Protocol: protocol, ProtocolImplementations: impls}, &res)
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// ExecuteCommand launches the fuzzer process or container for the
// protocol.
func (c *Client) ExecuteCommand(ctx context.Context, protocol string, impls []string) (*ExecResult, error) {
	var res ExecResult
	err := c.post(ctx, "/protocol-compliance/execute-command",
		execRequest{Protocol: protocol, ProtocolImplementations: impls}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// StopProcess stops a plain (non-containerized) fuzzer process.
func (c *Client) StopProcess(ctx context.Context, pid int, protocol string) error {
	return c.post(ctx, "/protocol-compliance/stop-process",
		map[string]interface{}{"pid": pid, "protocol": protocol}, nil)
}

// StopAndCleanup stops and removes a fuzzer container. Passing an empty
// container id is a no-op on the backend side.
func (c *Client) StopAndCleanup(ctx context.Context, containerID, protocol string) error {
	return c.post(ctx, "/protocol-compliance/stop-and-cleanup",
		map[string]string{"container_id": containerID, "protocol": protocol}, nil)
}

// ReadLog fetches log content appended since lastPosition. The returned
// position, not any locally computed length, is the cursor for the next
// call: the backend stays authoritative so file rotation is tolerated.
func (c *Client) ReadLog(ctx context.Context, protocol string, lastPosition int64) (*ReadLogResult, error) {
	var res ReadLogResult
	err := c.post(ctx, "/protocol-compliance/read-log",
		readLogRequest{Protocol: protocol, LastPosition: lastPosition}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.WrapBackendError(err, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapBackendError(err, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.WrapBackendError(
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), path)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response for %s: %w", path, err)
		}
	}
	return nil
}
