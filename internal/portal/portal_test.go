package portal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/innowave/analytiqa/internal/db"
	"github.com/innowave/analytiqa/internal/history"
	"github.com/innowave/analytiqa/internal/model"
	"github.com/innowave/analytiqa/internal/rules"
)

const (
	dev  = "dev@example.com"
	lead = "lead@example.com"
)

func setupService(t *testing.T) (*Service, *db.DB) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	err = d.Seed(context.Background(), db.ReferenceData{
		Users: []model.User{
			{Email: dev, FullName: "Dev"},
			{Email: lead, FullName: "Lead", Permissions: []string{model.PermChangeToReview, model.PermChangeToReady}},
		},
		NatCos: []model.NatCo{{Code: "HR", Manufacturer: "Arris", Languages: []string{"hr"}}},
		StatusGroups: []model.StatusGroup{
			{Name: "Developers", Owner: dev, Statuses: []model.AutomationStatus{model.AutomationInDevelopment}},
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := history.NewRecorder(d, logger)
	disp := rules.NewDispatcher(logger)
	rules.NewEngine(d, rec, disp, logger)
	return New(d, rec, disp, logger), d
}

func ptr[T any](v T) *T { return &v }

func TestCommentOwnership(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tc, err := svc.CreateTestCase(ctx, dev, model.TestCase{Name: "Boot"})
	if err != nil {
		t.Fatalf("CreateTestCase: %v", err)
	}
	c, err := svc.AddComment(ctx, dev, *model.TestCaseTarget(tc.ID), "looks flaky")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	if _, err := svc.UpdateComment(ctx, lead, c.ID, "hijacked"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("update by other user: got %v, want ErrNotOwner", err)
	}
	if err := svc.DeleteComment(ctx, lead, c.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("delete by other user: got %v, want ErrNotOwner", err)
	}
	updated, err := svc.UpdateComment(ctx, dev, c.ID, "definitely flaky")
	if err != nil {
		t.Fatalf("update by author: %v", err)
	}
	if updated.Body != "definitely flaky" {
		t.Errorf("body: got %q", updated.Body)
	}

	if _, err := svc.AddComment(ctx, dev, *model.ScriptIssueTarget(555), "x"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("comment on missing issue: got %v, want ErrNotFound", err)
	}
	if _, err := svc.AddComment(ctx, dev, model.Target{Kind: "bogus", ID: 1}, "x"); !errors.Is(err, ErrInvalid) {
		t.Errorf("comment on unknown kind: got %v, want ErrInvalid", err)
	}
}

func TestStatusPermissions(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tc, _ := svc.CreateTestCase(ctx, dev, model.TestCase{Name: "Boot"})

	_, err := svc.UpdateTestCase(ctx, dev, tc.ID, model.TestCasePatch{AutomationStatus: ptr(model.AutomationReview)})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("review without permission: got %v, want ErrForbidden", err)
	}
	got, err := svc.UpdateTestCase(ctx, lead, tc.ID, model.TestCasePatch{AutomationStatus: ptr(model.AutomationReview)})
	if err != nil {
		t.Fatalf("review with permission: %v", err)
	}
	if got.AutomationStatus != model.AutomationReview {
		t.Errorf("status: got %q", got.AutomationStatus)
	}
}

func TestReadyRefusedWithOpenIssues(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tc, _ := svc.CreateTestCase(ctx, dev, model.TestCase{Name: "Boot", AutomationStatus: model.AutomationAutomatable})
	sc, err := svc.CreateScript(ctx, dev, model.Script{TestCaseID: tc.ID, Name: "boot.py"})
	if err != nil {
		t.Fatalf("CreateScript: %v", err)
	}
	is, err := svc.CreateIssue(ctx, lead, model.ScriptIssue{ScriptID: sc.ID, Summary: "hangs"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	_, err = svc.UpdateTestCase(ctx, lead, tc.ID, model.TestCasePatch{AutomationStatus: ptr(model.AutomationReady)})
	if !errors.Is(err, ErrOpenIssues) {
		t.Errorf("ready with open issue: got %v, want ErrOpenIssues", err)
	}

	if _, err := svc.UpdateIssue(ctx, dev, is.ID, model.IssuePatch{Status: ptr(model.IssueClosed), ResolvedBy: ptr(dev)}); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}
	got, _ := svc.GetTestCase(ctx, tc.ID)
	if got.AutomationStatus != model.AutomationReady {
		t.Errorf("after closing issue: got %q, want ready", got.AutomationStatus)
	}
}

func TestAutoAssignToGroupOwner(t *testing.T) {
	svc, d := setupService(t)
	ctx := context.Background()

	tc, _ := svc.CreateTestCase(ctx, lead, model.TestCase{Name: "Boot", AutomationStatus: model.AutomationAutomatable})
	got, err := svc.UpdateTestCase(ctx, lead, tc.ID, model.TestCasePatch{AutomationStatus: ptr(model.AutomationInDevelopment)})
	if err != nil {
		t.Fatalf("UpdateTestCase: %v", err)
	}
	if got.Assigned != dev {
		t.Errorf("assigned: got %q, want %q", got.Assigned, dev)
	}

	hist, err := svc.ListHistory(ctx, tc.ID)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history: got %d records, want 1", len(hist))
	}
	wantFields := map[string]string{
		history.FieldAutomationStatus: "automatable changed to in-development",
		history.FieldAssigned:         " changed to " + dev,
	}
	if diff := cmp.Diff(wantFields, hist[0].ChangedFields); diff != "" {
		t.Errorf("changed fields mismatch (-want +got):\n%s", diff)
	}

	notes, _ := d.ListNotifications(ctx, dev, false)
	var msgs []string
	for _, n := range notes {
		msgs = append(msgs, n.Message)
	}
	want := []string{
		"Testcase ID 13000 Status is now in in-development",
		"Testcase ID 13000 is assigned to you by Lead",
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestNoopUpdateWritesNoHistory(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tc, _ := svc.CreateTestCase(ctx, dev, model.TestCase{Name: "Boot"})
	if _, err := svc.UpdateTestCase(ctx, dev, tc.ID, model.TestCasePatch{Name: ptr("Boot")}); err != nil {
		t.Fatalf("UpdateTestCase: %v", err)
	}
	hist, _ := svc.ListHistory(ctx, tc.ID)
	if len(hist) != 0 {
		t.Errorf("history: got %d, want 0", len(hist))
	}
}

func TestRejectsUnknownEnums(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	for _, tc := range []model.TestCase{
		{Name: "a", Priority: "urgent"},
		{Name: "b", Status: "blocked"},
		{Name: "c", Type: "fuzz"},
		{Name: "d", AutomationStatus: "done"},
	} {
		if _, err := svc.CreateTestCase(ctx, dev, tc); !errors.Is(err, ErrInvalid) {
			t.Errorf("create %+v: got %v, want ErrInvalid", tc, err)
		}
	}

	tc, err := svc.CreateTestCase(ctx, dev, model.TestCase{Name: "Boot"})
	if err != nil {
		t.Fatalf("CreateTestCase: %v", err)
	}
	for _, p := range []model.TestCasePatch{
		{Priority: ptr(model.Priority("bogus"))},
		{Status: ptr(model.Status("Blocked"))},
		{Type: ptr(model.TestCaseType("fuzz"))},
	} {
		if _, err := svc.UpdateTestCase(ctx, dev, tc.ID, p); !errors.Is(err, ErrInvalid) {
			t.Errorf("update %+v: got %v, want ErrInvalid", p, err)
		}
	}

	got, err := svc.GetTestCase(ctx, tc.ID)
	if err != nil {
		t.Fatalf("GetTestCase: %v", err)
	}
	if got.Priority != model.PriorityClass3 || got.Status != model.StatusTodo || got.Type != model.TypeSmoke {
		t.Errorf("stored enums changed: %s %s %s", got.Priority, got.Status, got.Type)
	}
	hist, _ := svc.ListHistory(ctx, tc.ID)
	if len(hist) != 0 {
		t.Errorf("history: got %d, want 0", len(hist))
	}
}

func TestStepEditing(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tc, _ := svc.CreateTestCase(ctx, dev, model.TestCase{
		Name: "Boot",
		Steps: model.Steps{
			1: {Action: "a"},
			2: {Action: "b"},
			3: {Action: "c"},
		},
	})

	got, err := svc.DeleteStep(ctx, dev, tc.ID, 2)
	if err != nil {
		t.Fatalf("DeleteStep: %v", err)
	}
	want := model.Steps{1: {Action: "a"}, 2: {Action: "c"}}
	if diff := cmp.Diff(want, got.Steps); diff != "" {
		t.Errorf("after delete (-want +got):\n%s", diff)
	}

	got, err = svc.PutStep(ctx, dev, tc.ID, 3, model.Step{Action: "d", ExpectedResult: "done"})
	if err != nil {
		t.Fatalf("PutStep append: %v", err)
	}
	if got.Steps[3].Action != "d" {
		t.Errorf("appended step: got %+v", got.Steps[3])
	}
	if _, err := svc.PutStep(ctx, dev, tc.ID, 9, model.Step{}); !errors.Is(err, ErrInvalid) {
		t.Errorf("out of range step: got %v, want ErrInvalid", err)
	}
	if _, err := svc.DeleteStep(ctx, dev, tc.ID, 9); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("delete missing step: got %v, want ErrNotFound", err)
	}

	if _, err := svc.CreateTestCase(ctx, dev, model.TestCase{Name: "gap", Steps: model.Steps{2: {}}}); !errors.Is(err, ErrInvalid) {
		t.Errorf("non-contiguous steps: got %v, want ErrInvalid", err)
	}
}

func TestBulkNatcoRowsPropagate(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tc, _ := svc.CreateTestCase(ctx, dev, model.TestCase{Name: "Boot", AutomationStatus: model.AutomationAutomatable})
	rows, err := svc.ListNatcoRows(ctx, tc.ID)
	if err != nil {
		t.Fatalf("ListNatcoRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows: got %d, want 1", len(rows))
	}

	updated, err := svc.UpdateNatcoRows(ctx, dev, NatcoRowPatch{
		IDs:    []int64{rows[0].ID},
		Status: ptr(model.AutomationInDevelopment),
	})
	if err != nil {
		t.Fatalf("UpdateNatcoRows: %v", err)
	}
	if updated[0].ModifiedBy != dev {
		t.Errorf("modified by: got %q", updated[0].ModifiedBy)
	}
	got, _ := svc.GetTestCase(ctx, tc.ID)
	if got.AutomationStatus != model.AutomationInDevelopment {
		t.Errorf("test case status: got %q, want in-development", got.AutomationStatus)
	}
}

func TestScriptTypeFollowsTestCase(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	tc, _ := svc.CreateTestCase(ctx, dev, model.TestCase{Name: "Soak it", Type: model.TypeSoak})
	sc, err := svc.CreateScript(ctx, dev, model.Script{TestCaseID: tc.ID, Name: "soak.py", Type: model.TypeSmoke})
	if err != nil {
		t.Fatalf("CreateScript: %v", err)
	}
	if sc.Type != model.TypeSoak {
		t.Errorf("script type: got %q, want %q", sc.Type, model.TypeSoak)
	}
}
