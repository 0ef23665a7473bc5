package solver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/joshharrison/qsched/internal/qubo"
	"github.com/tidwall/gjson"
)

// Remote talks to an external solver backend speaking the same three-call
// contract over HTTP: POST /jobs submits the wire-format problem, GET
// /jobs/{id} reports status, GET /jobs/{id}/result returns the solution.
// Responses are parsed tolerantly; backends disagree on envelope details.
type Remote struct {
	Endpoint string
	Token    string
	Client   *http.Client

	name string
}

// NewRemote returns a remote backend client for the given endpoint.
func NewRemote(name, endpoint, token string) *Remote {
	if name == "" {
		name = "remote"
	}
	return &Remote{
		Endpoint: endpoint,
		Token:    token,
		Client:   &http.Client{Timeout: 30 * time.Second},
		name:     name,
	}
}

func (r *Remote) Name() string { return r.name }
func (r *Remote) Cost() int    { return 1 }

func (r *Remote) Submit(ctx context.Context, p *qubo.Problem) (JobID, error) {
	payload, err := qubo.MarshalWire(p)
	if err != nil {
		return "", fmt.Errorf("marshal problem: %w", err)
	}
	body, err := r.do(ctx, http.MethodPost, r.Endpoint+"/jobs", payload)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		// Some backends nest the job object.
		id = gjson.GetBytes(body, "job.id").String()
	}
	if id == "" {
		return "", fmt.Errorf("%w: no job id in submit response", ErrUnavailable)
	}
	return JobID(id), nil
}

func (r *Remote) Poll(ctx context.Context, id JobID) (Status, error) {
	body, err := r.do(ctx, http.MethodGet, fmt.Sprintf("%s/jobs/%s", r.Endpoint, id), nil)
	if err != nil {
		return "", err
	}
	switch gjson.GetBytes(body, "status").String() {
	case "Queued", "queued", "waiting":
		return StatusQueued, nil
	case "Running", "running", "executing":
		return StatusRunning, nil
	case "Succeeded", "succeeded", "completed":
		return StatusSucceeded, nil
	case "TimedOut", "timeout":
		return StatusTimedOut, nil
	default:
		return StatusFailed, nil
	}
}

func (r *Remote) Fetch(ctx context.Context, id JobID) (*Result, error) {
	body, err := r.do(ctx, http.MethodGet, fmt.Sprintf("%s/jobs/%s/result", r.Endpoint, id), nil)
	if err != nil {
		return nil, err
	}
	raw := gjson.GetBytes(body, "solutionBits")
	if !raw.Exists() {
		return nil, fmt.Errorf("%w: result has no solutionBits", ErrUnavailable)
	}
	var out Result
	raw.ForEach(func(_, v gjson.Result) bool {
		out.Bits = append(out.Bits, int(v.Int()))
		return true
	})
	out.Energy = gjson.GetBytes(body, "energy").Float()
	out.Iterations = int(gjson.GetBytes(body, "iterations").Int())
	return &out, nil
}

func (r *Remote) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrUnavailable, url, resp.StatusCode, bytes.TrimSpace(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON from %s", ErrUnavailable, url)
	}
	return body, nil
}
