package rules

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/innowave/analytiqa/internal/db"
	"github.com/innowave/analytiqa/internal/history"
	"github.com/innowave/analytiqa/internal/model"
)

type fixture struct {
	db       *db.DB
	dispatch *Dispatcher
	history  *history.Recorder
}

func setup(t *testing.T) *fixture {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ref := db.ReferenceData{
		Users: []model.User{
			{Email: "dev@example.com", FullName: "Dev One"},
			{Email: "lead@example.com", FullName: "Lead"},
		},
		NatCos: []model.NatCo{
			{Code: "HR", Manufacturer: "Arris", Languages: []string{"hr", "en"}},
			{Code: "HU", Manufacturer: "Skyworth", Languages: []string{"hu", "en", "de"}},
		},
		StatusGroups: []model.StatusGroup{
			{Name: "Review", Owner: "lead@example.com", Statuses: []model.AutomationStatus{model.AutomationReview}},
		},
	}
	if err := d.Seed(context.Background(), ref); err != nil {
		t.Fatalf("seed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	disp := NewDispatcher(logger)
	rec := history.NewRecorder(d, logger)
	NewEngine(d, rec, disp, logger)
	return &fixture{db: d, dispatch: disp, history: rec}
}

// save persists an automation status change the way the service does.
func (f *fixture) save(t *testing.T, before model.TestCase, status model.AutomationStatus) model.TestCase {
	t.Helper()
	ctx := context.Background()
	after := before
	after.AutomationStatus = status
	saved, err := f.history.Save(ctx, before, after, "dev@example.com", "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	f.dispatch.Dispatch(ctx, TestCaseSaved{TestCase: saved, Previous: &before, Actor: "dev@example.com"})
	return saved
}

func (f *fixture) newTestCase(t *testing.T) model.TestCase {
	t.Helper()
	tc, err := f.db.CreateTestCase(context.Background(), model.TestCase{
		Name:             "Zap",
		AutomationStatus: model.AutomationNotAutomatable,
		CreatedBy:        "dev@example.com",
	})
	if err != nil {
		t.Fatalf("create test case: %v", err)
	}
	return tc
}

func TestNatcoRowsCreatedOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tc := f.newTestCase(t)

	tc = f.save(t, tc, model.AutomationAutomatable)
	n, err := f.db.CountNatcoRows(ctx, tc.ID)
	if err != nil {
		t.Fatal(err)
	}
	// HR has 2 languages, HU has 3.
	if n != 5 {
		t.Errorf("natco rows: got %d, want 5", n)
	}

	f.dispatch.Dispatch(ctx, TestCaseSaved{TestCase: tc, Previous: &tc, Actor: "dev@example.com"})
	n, _ = f.db.CountNatcoRows(ctx, tc.ID)
	if n != 5 {
		t.Errorf("natco rows after resave: got %d, want 5", n)
	}

	rows, _ := f.db.ListNatcoRows(ctx, tc.ID)
	for _, r := range rows {
		if r.NatCo == "HR" && r.Device != "Arris" {
			t.Errorf("HR device: got %q, want Arris", r.Device)
		}
		if r.User != "dev@example.com" {
			t.Errorf("row user: got %q", r.User)
		}
	}
}

func TestNotAutomatableCreatesNoRows(t *testing.T) {
	f := setup(t)
	tc := f.newTestCase(t)
	f.dispatch.Dispatch(context.Background(), TestCaseSaved{TestCase: tc, Actor: "dev@example.com"})
	if n, _ := f.db.CountNatcoRows(context.Background(), tc.ID); n != 0 {
		t.Errorf("natco rows: got %d, want 0", n)
	}
}

func issueFixture(t *testing.T, f *fixture) (model.TestCase, model.Script) {
	t.Helper()
	tc := f.newTestCase(t)
	tc = f.save(t, tc, model.AutomationAutomatable)
	sc, err := f.db.CreateScript(context.Background(), model.Script{
		TestCaseID: tc.ID, Name: "zap.py", DevelopedBy: "dev@example.com",
		NatCo: "HR", Device: "Arris", Language: "hr",
	})
	if err != nil {
		t.Fatalf("create script: %v", err)
	}
	f.dispatch.Dispatch(context.Background(), ScriptSaved{Script: sc, Created: true, Actor: "dev@example.com"})
	return tc, sc
}

func (f *fixture) openIssue(t *testing.T, sc model.Script) model.ScriptIssue {
	t.Helper()
	is, err := f.db.CreateIssue(context.Background(), model.ScriptIssue{
		ScriptID: sc.ID, Summary: "fails", CreatedBy: "lead@example.com",
	})
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	f.dispatch.Dispatch(context.Background(), ScriptIssueSaved{Issue: is, Created: true, Actor: "lead@example.com"})
	return is
}

func (f *fixture) closeIssue(t *testing.T, is model.ScriptIssue) {
	t.Helper()
	is.Status = model.IssueClosed
	is.ResolvedBy = "dev@example.com"
	is, err := f.db.SaveIssue(context.Background(), is)
	if err != nil {
		t.Fatalf("save issue: %v", err)
	}
	f.dispatch.Dispatch(context.Background(), ScriptIssueSaved{Issue: is, Actor: "dev@example.com"})
}

func (f *fixture) status(t *testing.T, id int64) model.AutomationStatus {
	t.Helper()
	tc, err := f.db.GetTestCase(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return tc.AutomationStatus
}

func TestClosingLastIssueMakesReady(t *testing.T) {
	f := setup(t)
	tc, sc := issueFixture(t, f)

	first := f.openIssue(t, sc)
	second := f.openIssue(t, sc)
	if got := f.status(t, tc.ID); got != model.AutomationInDevelopment {
		t.Fatalf("after open: got %q, want %q", got, model.AutomationInDevelopment)
	}

	f.closeIssue(t, first)
	if got := f.status(t, tc.ID); got != model.AutomationInDevelopment {
		t.Errorf("one of two closed: got %q, want %q", got, model.AutomationInDevelopment)
	}

	f.closeIssue(t, second)
	if got := f.status(t, tc.ID); got != model.AutomationReady {
		t.Errorf("all closed: got %q, want %q", got, model.AutomationReady)
	}
}

func TestUnderReviewMovesToReviewAndNotifiesGroup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tc, sc := issueFixture(t, f)

	is := f.openIssue(t, sc)
	is.Status = model.IssueUnderReview
	is, _ = f.db.SaveIssue(ctx, is)
	f.dispatch.Dispatch(ctx, ScriptIssueSaved{Issue: is, Actor: "dev@example.com"})

	if got := f.status(t, tc.ID); got != model.AutomationReview {
		t.Fatalf("status: got %q, want %q", got, model.AutomationReview)
	}
	notes, err := f.db.ListNotifications(ctx, "lead@example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	want := "Testcase ID 13000 Status is now in review"
	found := false
	for _, n := range notes {
		if n.Message == want {
			found = true
		}
	}
	if !found {
		t.Errorf("group owner notification %q not found in %+v", want, notes)
	}
}

func TestIssueNotifications(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, sc := issueFixture(t, f)

	is := f.openIssue(t, sc)
	devNotes, _ := f.db.ListNotifications(ctx, "dev@example.com", false)
	if len(devNotes) == 0 || devNotes[0].Message != "zap.py - Script issue Opened By lead@example.com" {
		t.Fatalf("developer notifications: got %+v", devNotes)
	}
	if devNotes[0].Path() != "core/script/issue-detail/101/" {
		t.Errorf("path: got %q", devNotes[0].Path())
	}

	f.closeIssue(t, is)
	devNotes, _ = f.db.ListNotifications(ctx, "dev@example.com", false)
	if devNotes[0].Message != "zap.py - fails Resolved by dev@example.com" {
		t.Errorf("resolved notification: got %q", devNotes[0].Message)
	}
}

func TestScriptMarksRowApplicable(t *testing.T) {
	f := setup(t)
	tc, _ := issueFixture(t, f)

	row, err := f.db.FindNatcoRow(context.Background(), tc.ID, "HR", "Arris", "hr")
	if err != nil {
		t.Fatal(err)
	}
	if !row.Applicable {
		t.Error("matching row should be applicable")
	}
	other, _ := f.db.FindNatcoRow(context.Background(), tc.ID, "HR", "Arris", "en")
	if other.Applicable {
		t.Error("non-matching row should not be applicable")
	}
}

func TestRowStatusPropagates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tc, _ := issueFixture(t, f)

	row, _ := f.db.FindNatcoRow(ctx, tc.ID, "HU", "Skyworth", "de")
	row.Status = model.AutomationReview
	row, _ = f.db.SaveNatcoRow(ctx, row)
	f.dispatch.Dispatch(ctx, NatcoRowSaved{Row: row, Actor: "dev@example.com"})

	if got := f.status(t, tc.ID); got != model.AutomationReview {
		t.Errorf("status: got %q, want %q", got, model.AutomationReview)
	}
	h, err := f.db.LatestHistory(ctx, tc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if h.AutomationStatus != model.AutomationAutomatable {
		t.Errorf("history pre-update status: got %q", h.AutomationStatus)
	}
}

func TestAssignmentNotification(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tc := f.newTestCase(t)

	after := tc
	after.Assigned = "lead@example.com"
	f.dispatch.Dispatch(ctx, TestCaseSaved{TestCase: after, Previous: &tc, Actor: "dev@example.com"})
	// Same assignment again is not re-notified.
	f.dispatch.Dispatch(ctx, TestCaseSaved{TestCase: after, Previous: &after, Actor: "dev@example.com"})

	notes, _ := f.db.ListNotifications(ctx, "lead@example.com", false)
	if len(notes) != 1 {
		t.Fatalf("notifications: got %d, want 1", len(notes))
	}
	if notes[0].Message != "Testcase ID 13000 is assigned to you by Dev One" {
		t.Errorf("message: got %q", notes[0].Message)
	}
}

func TestDispatcherIsolatesFailures(t *testing.T) {
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	var ran []string
	d.On("testcase.saved", "fails", func(context.Context, Event) error {
		ran = append(ran, "fails")
		return errors.New("boom")
	})
	d.On("testcase.saved", "panics", func(context.Context, Event) error {
		ran = append(ran, "panics")
		panic("kaboom")
	})
	Subscribe(d, "typed", func(_ context.Context, ev TestCaseSaved) error {
		ran = append(ran, "typed")
		return nil
	})

	d.Dispatch(context.Background(), TestCaseSaved{})
	if len(ran) != 3 || ran[2] != "typed" {
		t.Errorf("handlers run: got %v, want [fails panics typed]", ran)
	}
}

func TestDispatchDepthBounded(t *testing.T) {
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	calls := 0
	Subscribe(d, "loop", func(ctx context.Context, ev TestCaseSaved) error {
		calls++
		d.Dispatch(ctx, ev)
		return nil
	})
	d.Dispatch(context.Background(), TestCaseSaved{})
	if calls != maxDepth {
		t.Errorf("calls: got %d, want %d", calls, maxDepth)
	}
}
