package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/innowave/analytiqa/internal/model"
)

type memStore struct {
	saved   []model.TestCase
	records []model.HistoryRecord
	err     error
}

func (m *memStore) SaveTestCaseWithHistory(_ context.Context, tc model.TestCase, h *model.HistoryRecord) (model.TestCase, error) {
	if m.err != nil {
		return tc, m.err
	}
	m.saved = append(m.saved, tc)
	if h != nil {
		h.ID = int64(len(m.records) + 1)
		m.records = append(m.records, *h)
	}
	return tc, nil
}

func base() model.TestCase {
	return model.TestCase{
		ID:               13000,
		Name:             "Boot",
		Description:      "boots",
		Status:           model.StatusTodo,
		AutomationStatus: model.AutomationNotAutomatable,
		Priority:         model.PriorityClass3,
		Type:             model.TypeSmoke,
	}
}

func TestDiff(t *testing.T) {
	before := base()
	after := before
	after.Name = "Boot fast"
	after.AutomationStatus = model.AutomationAutomatable
	after.Summary = "untracked"
	after.Steps = model.Steps{1: {Action: "also untracked"}}

	want := map[string]string{
		FieldName:             "Boot changed to Boot fast",
		FieldAutomationStatus: "not-automatable changed to automatable",
	}
	if diff := cmp.Diff(want, Diff(before, after)); diff != "" {
		t.Errorf("Diff mismatch (-want +got):\n%s", diff)
	}
	got := Message(Diff(before, after))
	wantMsg := "Name: Boot changed to Boot fast; Automation Status: not-automatable changed to automatable"
	if got != wantMsg {
		t.Errorf("Message: got %q, want %q", got, wantMsg)
	}
}

func TestEntry(t *testing.T) {
	before := base()
	after := before
	after.Status = model.StatusOngoing

	rec, ok := Entry(before, after, "qa@example.com", "")
	if !ok {
		t.Fatal("Entry: expected an entry")
	}
	if rec.Status != model.StatusTodo {
		t.Errorf("pre-update status: got %q, want %q", rec.Status, model.StatusTodo)
	}
	if rec.ChangeReason != "Status: todo changed to ongoing" {
		t.Errorf("reason: got %q", rec.ChangeReason)
	}
	if rec.Snapshot == nil || rec.Snapshot.Status != model.StatusTodo {
		t.Errorf("snapshot: got %+v", rec.Snapshot)
	}

	if rec, _ := Entry(before, after, "qa@example.com", "bulk triage"); rec.ChangeReason != "bulk triage" {
		t.Errorf("reason override: got %q", rec.ChangeReason)
	}
	if _, ok := Entry(before, before, "qa@example.com", ""); ok {
		t.Error("empty diff without reason should have no entry")
	}
	if _, ok := Entry(before, before, "qa@example.com", "touched"); !ok {
		t.Error("empty diff with reason should have an entry")
	}
}

func TestSave(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	before := base()
	after := before
	after.Priority = model.PriorityClass1

	if _, err := r.Save(ctx, before, after, "qa@example.com", ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := r.Save(ctx, before, before, "qa@example.com", ""); err != nil {
		t.Fatalf("Save without changes: %v", err)
	}
	if len(store.saved) != 2 || len(store.records) != 1 {
		t.Errorf("saved %d test cases and %d records, want 2 and 1", len(store.saved), len(store.records))
	}
	if got := store.records[0].ChangedFields[FieldPriority]; got != "class_3 changed to class_1" {
		t.Errorf("priority change: got %q", got)
	}

	store.err = errors.New("disk full")
	if _, err := r.Save(ctx, before, after, "qa@example.com", ""); !errors.Is(err, store.err) {
		t.Errorf("Save with failing store: got %v", err)
	}
}
