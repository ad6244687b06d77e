package stbtester

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/innowave/analytiqa/internal/db"
	"github.com/innowave/analytiqa/internal/model"
)

type fakeAPI struct {
	nodes   []WorkgroupNode
	results map[string][]Result
	since   map[string]time.Time
}

func (f *fakeAPI) Workgroup(context.Context) ([]WorkgroupNode, error) { return f.nodes, nil }

func (f *fakeAPI) Results(_ context.Context, script string, since time.Time) ([]Result, error) {
	if f.since == nil {
		f.since = make(map[string]time.Time)
	}
	f.since[script] = since
	var out []Result
	for _, r := range f.results[script] {
		if since.IsZero() || r.StartTime.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "stb.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSyncNodes(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	api := &fakeAPI{nodes: []WorkgroupNode{{ID: "node-1", FriendlyName: "HR"}}}
	s := NewSyncer(api, d, testLogger())

	s.SyncOnce(ctx)
	first, err := d.ActiveNodeConfig(ctx, "node-1")
	if err != nil {
		t.Fatalf("ActiveNodeConfig: %v", err)
	}
	if first.NatCo != "HR" {
		t.Errorf("natco: got %q, want HR", first.NatCo)
	}

	// Unchanged friendly name keeps the config.
	s.SyncOnce(ctx)
	again, _ := d.ActiveNodeConfig(ctx, "node-1")
	if again.ID != first.ID {
		t.Errorf("config replaced without a change: %d -> %d", first.ID, again.ID)
	}

	api.nodes[0].FriendlyName = "HU"
	s.SyncOnce(ctx)
	moved, _ := d.ActiveNodeConfig(ctx, "node-1")
	if moved.ID == first.ID || moved.NatCo != "HU" {
		t.Errorf("after rename: got %+v", moved)
	}

	nodes, err := d.ListSTBNodes(ctx)
	if err != nil {
		t.Fatalf("ListSTBNodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Errorf("nodes: got %d, want 1", len(nodes))
	}
}

func TestSyncResultsIncremental(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	tc, err := d.CreateTestCase(ctx, model.TestCase{Name: "Boot"})
	if err != nil {
		t.Fatalf("CreateTestCase: %v", err)
	}
	sc, err := d.CreateScript(ctx, model.Script{TestCaseID: tc.ID, Name: "boot.py"})
	if err != nil {
		t.Fatalf("CreateScript: %v", err)
	}

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	api := &fakeAPI{results: map[string][]Result{
		"boot.py": {
			{ResultID: "r1", StartTime: t0, EndTime: t0.Add(time.Minute), Result: "pass"},
			{ResultID: "r2", StartTime: t0.Add(time.Hour), EndTime: t0.Add(61 * time.Minute), Result: "fail", FailureReason: "no video"},
		},
	}}
	s := NewSyncer(api, d, testLogger())

	s.SyncOnce(ctx)
	if !api.since["boot.py"].IsZero() {
		t.Errorf("first sync since: got %v, want zero", api.since["boot.py"])
	}
	got, err := d.ListResults(ctx, sc.ID, 0)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results: got %d, want 2", len(got))
	}

	api.results["boot.py"] = append(api.results["boot.py"],
		Result{ResultID: "r3", StartTime: t0.Add(2 * time.Hour), Result: "pass"})
	s.SyncOnce(ctx)
	if want := t0.Add(time.Hour); !api.since["boot.py"].Equal(want) {
		t.Errorf("second sync since: got %v, want %v", api.since["boot.py"], want)
	}
	got, _ = d.ListResults(ctx, sc.ID, 0)
	if len(got) != 3 {
		t.Errorf("results after second sync: got %d, want 3", len(got))
	}
	if got[0].ResultID != "r3" {
		t.Errorf("newest result: got %q, want r3", got[0].ResultID)
	}
}
