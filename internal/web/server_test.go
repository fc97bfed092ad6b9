package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runward/runward/internal/adapters/ledger"
	"github.com/runward/runward/internal/core"
	"github.com/runward/runward/internal/service"
)

type stubProbe struct {
	snap core.ProbeSnapshot
}

func (s stubProbe) Probe(context.Context, core.Target) (core.ProbeSnapshot, error) {
	return s.snap, nil
}

type stubTasks struct {
	nodes []core.TaskNodeState
}

func (s stubTasks) LoadNodes(context.Context, core.Target) ([]core.TaskNodeState, error) {
	return s.nodes, nil
}

func (s stubTasks) ResetNodes(context.Context, core.Target, []string) error {
	return nil
}

func newTestServer(t *testing.T, probe core.StateProbe, tasks core.TaskStore) (*Server, core.Ledger) {
	t.Helper()

	l, err := ledger.NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	recon := service.NewReconciler(l, probe, service.ReconcilerConfig{}, nil)
	planner := service.NewPlanner(l, tasks, nil)
	svc := service.NewService(l, recon, planner, nil, nil)

	return New(DefaultConfig(), svc, nil), l
}

func seedRun(t *testing.T, l core.Ledger, id string, status core.RunStatus) *core.RunRecord {
	t.Helper()
	rec := &core.RunRecord{
		ID: core.RunID(id),
		Target: core.Target{
			Host:       "ci@vm-7",
			ControlDir: "/var/run/work/" + id,
			TaskDB:     "/var/run/work/" + id + "/tasks.db",
		},
		Status:    status,
		Attempt:   1,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, l.Upsert(context.Background(), rec))
	return rec
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t, stubProbe{}, stubTasks{})
	rr := doRequest(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServer_ListRuns(t *testing.T) {
	s, l := newTestServer(t, stubProbe{}, stubTasks{})
	seedRun(t, l, "r1", core.StatusRunning)
	seedRun(t, l, "r2", core.StatusFailed)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/runs")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Runs []core.RunRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Runs, 2)

	rr = doRequest(t, s, http.MethodGet, "/api/v1/runs?status=failed")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, core.RunID("r2"), body.Runs[0].ID)
}

func TestServer_ListRunsBadStatus(t *testing.T) {
	s, _ := newTestServer(t, stubProbe{}, stubTasks{})
	rr := doRequest(t, s, http.MethodGet, "/api/v1/runs?status=exploded")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestServer_GetRun(t *testing.T) {
	s, l := newTestServer(t, stubProbe{}, stubTasks{})
	seedRun(t, l, "r1", core.StatusRunning)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/runs/r1")
	require.Equal(t, http.StatusOK, rr.Code)

	var rec core.RunRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, core.RunID("r1"), rec.ID)

	rr = doRequest(t, s, http.MethodGet, "/api/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_GetPlan(t *testing.T) {
	tasks := stubTasks{nodes: []core.TaskNodeState{
		{NodeID: "build", Ord: 1, State: core.NodeFinished},
		{NodeID: "test", Ord: 2, State: core.NodeInProgress},
	}}
	s, l := newTestServer(t, stubProbe{}, tasks)
	seedRun(t, l, "r1", core.StatusFailed)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/runs/r1/plan")
	require.Equal(t, http.StatusOK, rr.Code)

	var plan core.ResumePlan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plan))
	assert.Equal(t, "test", plan.ResumeFromNodeID)
	assert.Equal(t, []string{"test"}, plan.ResetNodeIDs)
}

func TestServer_PlanDoneRunConflicts(t *testing.T) {
	s, l := newTestServer(t, stubProbe{}, stubTasks{})
	seedRun(t, l, "r1", core.StatusDone)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/runs/r1/plan")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestServer_ReconcileRun(t *testing.T) {
	now := time.Now().UTC()
	probe := stubProbe{snap: core.ProbeSnapshot{
		Exit:      core.PresentArtifact(core.ExitMarker{Code: 0}),
		Heartbeat: core.AbsentArtifact[core.HeartbeatSnapshot](),
		Process:   core.AbsentArtifact[core.ProcessInfo](),
		Tasks:     core.AbsentArtifact[[]core.TaskNodeState](),
		ProbedAt:  now,
	}}
	s, l := newTestServer(t, probe, stubTasks{})
	seedRun(t, l, "r1", core.StatusRunning)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/runs/r1/reconcile")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Run     core.RunRecord `json:"run"`
		Changed bool           `json:"changed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Changed)
	assert.Equal(t, core.StatusDone, body.Run.Status)
}

func TestServer_ReconcileAll(t *testing.T) {
	now := time.Now().UTC()
	probe := stubProbe{snap: core.ProbeSnapshot{
		Exit:      core.AbsentArtifact[core.ExitMarker](),
		Heartbeat: core.AbsentArtifact[core.HeartbeatSnapshot](),
		Process:   core.PresentArtifact(core.ProcessInfo{PID: 1, Alive: false}),
		Tasks:     core.AbsentArtifact[[]core.TaskNodeState](),
		ProbedAt:  now,
	}}
	s, l := newTestServer(t, probe, stubTasks{})
	seedRun(t, l, "r1", core.StatusRunning)
	seedRun(t, l, "r2", core.StatusDone)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/reconcile")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Total   int `json:"total"`
		Changed int `json:"changed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, 1, body.Changed)
}
