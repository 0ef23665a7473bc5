package httpd

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/joshharrison/qsched/internal/engine"
	"github.com/joshharrison/qsched/internal/solver"
)

const instanceBody = `{
  "tasks": [
    {"id": "t1", "duration": 2, "resources": {"cpu": 1}},
    {"id": "t2", "duration": 1, "resources": {"cpu": 1}, "predecessors": ["t1"]}
  ],
  "agents": [
    {"id": "a1", "capacity": {"cpu": 1}},
    {"id": "a2", "capacity": {"cpu": 1}}
  ],
  "horizon": 6
}`

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(engine.Options{
		Solvers: []solver.Solver{solver.NewFallback()},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func awaitRun(t *testing.T, srv *httptest.Server, id string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, body := get(t, srv.URL+"/api/v1/runs/"+id)
		switch gjson.Get(body, "status").String() {
		case string(RunCompleted), string(RunFailed):
			return body
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return ""
}

func TestRunLifecycle(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/json", strings.NewReader(instanceBody))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if !strings.HasPrefix(loc, "/api/v1/runs/") {
		t.Fatalf("Location = %q", loc)
	}
	id := strings.TrimPrefix(loc, "/api/v1/runs/")

	body := awaitRun(t, srv, id)
	if got := gjson.Get(body, "status").String(); got != string(RunCompleted) {
		t.Fatalf("status = %q, body: %s", got, body)
	}
	if !gjson.Get(body, "result.valid").Bool() {
		t.Errorf("result not valid: %s", body)
	}

	sresp, sbody := get(t, srv.URL+"/api/v1/runs/"+id+"/schedule")
	if sresp.StatusCode != http.StatusOK {
		t.Fatalf("schedule status = %d: %s", sresp.StatusCode, sbody)
	}
	if got := gjson.Get(sbody, "schedule.t1.agentId").String(); got == "" {
		t.Errorf("schedule missing t1 assignment: %s", sbody)
	}
	if gjson.Get(sbody, "metrics.makespan").Int() < 3 {
		t.Errorf("makespan below serial chain bound: %s", sbody)
	}
}

func TestCreateRun_RejectsInvalidInstance(t *testing.T) {
	srv := testServer(t)

	bad := `{"tasks": [{"id": "t1", "duration": 0}], "agents": [{"id": "a1"}], "horizon": 4}`
	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/json", strings.NewReader(bad))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestGetRun_UnknownID(t *testing.T) {
	srv := testServer(t)
	resp, _ := get(t, srv.URL+"/api/v1/runs/no-such-run")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestUnversionedPathRejected(t *testing.T) {
	srv := testServer(t)
	resp, body := get(t, srv.URL+"/runs")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if !strings.Contains(body, "versioned") {
		t.Errorf("body = %q, want versioned-path hint", body)
	}
}
