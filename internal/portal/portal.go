// Package portal applies user mutations: it validates them, saves them,
// writes history and raises the domain events the rules react to.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/innowave/analytiqa/internal/db"
	"github.com/innowave/analytiqa/internal/history"
	"github.com/innowave/analytiqa/internal/model"
	"github.com/innowave/analytiqa/internal/rules"
)

var (
	// ErrForbidden is returned when the actor lacks a required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrNotOwner is returned when a comment is changed by someone other
	// than its author.
	ErrNotOwner = errors.New("only the author may change this comment")
	// ErrOpenIssues is returned when a test case with open script issues
	// is moved to ready.
	ErrOpenIssues = errors.New("test case has open script issues")
	// ErrInvalid marks a malformed request.
	ErrInvalid = errors.New("invalid request")
)

type Store interface {
	CreateTestCase(ctx context.Context, tc model.TestCase) (model.TestCase, error)
	GetTestCase(ctx context.Context, id int64) (model.TestCase, error)
	ListTestCases(ctx context.Context, f model.TestCaseFilter) ([]model.TestCase, error)
	ListHistory(ctx context.Context, testCaseID int64) ([]model.HistoryRecord, error)

	ListNatcoRows(ctx context.Context, testCaseID int64) ([]model.NatcoStatus, error)
	GetNatcoRow(ctx context.Context, id int64) (model.NatcoStatus, error)
	SaveNatcoRows(ctx context.Context, rows []model.NatcoStatus) error

	CreateScript(ctx context.Context, sc model.Script) (model.Script, error)
	GetScript(ctx context.Context, id int64) (model.Script, error)
	ListScripts(ctx context.Context, testCaseID int64) ([]model.Script, error)

	CreateIssue(ctx context.Context, is model.ScriptIssue) (model.ScriptIssue, error)
	GetIssue(ctx context.Context, id int64) (model.ScriptIssue, error)
	SaveIssue(ctx context.Context, is model.ScriptIssue) (model.ScriptIssue, error)
	ListIssues(ctx context.Context, scriptID int64) ([]model.ScriptIssue, error)
	CountOpenIssues(ctx context.Context, testCaseID int64) (int, error)

	CreateComment(ctx context.Context, c model.Comment) (model.Comment, error)
	GetComment(ctx context.Context, id int64) (model.Comment, error)
	SaveComment(ctx context.Context, c model.Comment) (model.Comment, error)
	DeleteComment(ctx context.Context, id int64) error
	ListComments(ctx context.Context, target model.Target) ([]model.Comment, error)

	ListNotifications(ctx context.Context, recipient string, unreadOnly bool) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64, recipient string) error
	ClearNotifications(ctx context.Context, recipient string) (int64, error)

	HasPermission(ctx context.Context, email, permission string) (bool, error)
	StatusGroupFor(ctx context.Context, status model.AutomationStatus) (model.StatusGroup, error)
}

type Service struct {
	store    Store
	history  *history.Recorder
	dispatch *rules.Dispatcher
	targets  map[model.TargetKind]func(ctx context.Context, id int64) error
	logger   *slog.Logger
}

func New(store Store, rec *history.Recorder, d *rules.Dispatcher, logger *slog.Logger) *Service {
	s := &Service{store: store, history: rec, dispatch: d, logger: logger}
	s.targets = map[model.TargetKind]func(context.Context, int64) error{
		model.KindTestCase: func(ctx context.Context, id int64) error {
			_, err := store.GetTestCase(ctx, id)
			return err
		},
		model.KindScriptIssue: func(ctx context.Context, id int64) error {
			_, err := store.GetIssue(ctx, id)
			return err
		},
	}
	return s
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// --- Test cases ---

// CreateTestCase stores a new test case created by actor.
func (s *Service) CreateTestCase(ctx context.Context, actor string, tc model.TestCase) (model.TestCase, error) {
	if tc.Name == "" {
		return tc, invalid("test case name is required")
	}
	if tc.Priority == "" {
		tc.Priority = model.PriorityClass3
	}
	if tc.Status == "" {
		tc.Status = model.StatusTodo
	}
	if tc.AutomationStatus == "" {
		tc.AutomationStatus = model.AutomationNotAutomatable
	}
	if tc.Type == "" {
		tc.Type = model.TypeSmoke
	}
	if err := validateEnums(tc); err != nil {
		return tc, err
	}
	if tc.Steps == nil {
		tc.Steps = model.Steps{}
	}
	if err := tc.Steps.Validate(); err != nil {
		return tc, invalid("%v", err)
	}
	tc.CreatedBy = actor

	created, err := s.store.CreateTestCase(ctx, tc)
	if err != nil {
		return created, fmt.Errorf("creating test case: %w", err)
	}
	s.dispatch.Dispatch(ctx, rules.TestCaseSaved{TestCase: created, Actor: actor})
	return created, nil
}

func (s *Service) GetTestCase(ctx context.Context, id int64) (model.TestCase, error) {
	return s.store.GetTestCase(ctx, id)
}

func (s *Service) ListTestCases(ctx context.Context, f model.TestCaseFilter) ([]model.TestCase, error) {
	return s.store.ListTestCases(ctx, f)
}

func (s *Service) ListHistory(ctx context.Context, testCaseID int64) ([]model.HistoryRecord, error) {
	if _, err := s.store.GetTestCase(ctx, testCaseID); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, testCaseID)
}

// UpdateTestCase applies a partial update on behalf of actor. Moving the
// automation status to review or ready needs the matching permission,
// and ready is refused while open script issues remain. A status change
// that a status group routes reassigns the test case to the group owner
// unless the patch names an assignee.
func (s *Service) UpdateTestCase(ctx context.Context, actor string, id int64, p model.TestCasePatch) (model.TestCase, error) {
	before, err := s.store.GetTestCase(ctx, id)
	if err != nil {
		return before, err
	}
	if p.Steps != nil {
		if err := p.Steps.Validate(); err != nil {
			return before, invalid("%v", err)
		}
	}

	after := p.Apply(before)
	if after.Name == "" {
		return before, invalid("test case name is required")
	}
	if err := validateEnums(after); err != nil {
		return before, err
	}
	if after.AutomationStatus != before.AutomationStatus {
		if err := s.checkTransition(ctx, actor, id, after.AutomationStatus); err != nil {
			return before, err
		}
		if p.Assigned == nil {
			g, err := s.store.StatusGroupFor(ctx, after.AutomationStatus)
			switch {
			case err == nil && g.Owner != "":
				after.Assigned = g.Owner
			case err != nil && !errors.Is(err, db.ErrNotFound):
				return before, err
			}
		}
	}

	return s.save(ctx, actor, p.ChangeReason, before, after)
}

func validateEnums(tc model.TestCase) error {
	switch {
	case !tc.Priority.Valid():
		return invalid("unknown priority %q", tc.Priority)
	case !tc.Status.Valid():
		return invalid("unknown status %q", tc.Status)
	case !tc.AutomationStatus.Valid():
		return invalid("unknown automation status %q", tc.AutomationStatus)
	case !tc.Type.Valid():
		return invalid("unknown test case type %q", tc.Type)
	}
	return nil
}

func (s *Service) checkTransition(ctx context.Context, actor string, id int64, to model.AutomationStatus) error {
	if !to.Valid() {
		return invalid("unknown automation status %q", to)
	}
	var perm string
	switch to {
	case model.AutomationReview:
		perm = model.PermChangeToReview
	case model.AutomationReady:
		perm = model.PermChangeToReady
	default:
		return nil
	}
	ok, err := s.store.HasPermission(ctx, actor, perm)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s lacks %s", ErrForbidden, actor, perm)
	}
	if to == model.AutomationReady {
		open, err := s.store.CountOpenIssues(ctx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("%w: %d open", ErrOpenIssues, open)
		}
	}
	return nil
}

// save stores after with its history entry and raises TestCaseSaved.
func (s *Service) save(ctx context.Context, actor, reason string, before, after model.TestCase) (model.TestCase, error) {
	saved, err := s.history.Save(ctx, before, after, actor, reason)
	if err != nil {
		return saved, err
	}
	s.dispatch.Dispatch(ctx, rules.TestCaseSaved{TestCase: saved, Previous: &before, Actor: actor})
	return saved, nil
}

// PutStep replaces step n, or appends it when n is one past the last step.
func (s *Service) PutStep(ctx context.Context, actor string, id int64, n int, step model.Step) (model.TestCase, error) {
	before, err := s.store.GetTestCase(ctx, id)
	if err != nil {
		return before, err
	}
	if n < 1 || n > len(before.Steps)+1 {
		return before, invalid("step %d out of range 1..%d", n, len(before.Steps)+1)
	}
	after := before
	after.Steps = before.Steps.Clone()
	if after.Steps == nil {
		after.Steps = model.Steps{}
	}
	after.Steps[n] = step
	return s.save(ctx, actor, "", before, after)
}

// DeleteStep removes step n and renumbers the rest from 1.
func (s *Service) DeleteStep(ctx context.Context, actor string, id int64, n int) (model.TestCase, error) {
	before, err := s.store.GetTestCase(ctx, id)
	if err != nil {
		return before, err
	}
	steps, err := before.Steps.Delete(n)
	if err != nil {
		return before, fmt.Errorf("%w: %v", db.ErrNotFound, err)
	}
	after := before
	after.Steps = steps
	return s.save(ctx, actor, "", before, after)
}

// --- Natco applicability rows ---

func (s *Service) ListNatcoRows(ctx context.Context, testCaseID int64) ([]model.NatcoStatus, error) {
	if _, err := s.store.GetTestCase(ctx, testCaseID); err != nil {
		return nil, err
	}
	return s.store.ListNatcoRows(ctx, testCaseID)
}

// NatcoRowPatch is a bulk edit applied to every listed row.
type NatcoRowPatch struct {
	IDs        []int64                 `json:"id_fields"`
	Status     *model.AutomationStatus `json:"status,omitempty"`
	Applicable *bool                   `json:"applicable,omitempty"`
}

// UpdateNatcoRows applies one patch to several rows in a single
// transaction, then raises an event per row.
func (s *Service) UpdateNatcoRows(ctx context.Context, actor string, p NatcoRowPatch) ([]model.NatcoStatus, error) {
	if len(p.IDs) == 0 {
		return nil, invalid("no rows given")
	}
	if p.Status == nil && p.Applicable == nil {
		return nil, invalid("nothing to update")
	}
	if p.Status != nil && !p.Status.Valid() {
		return nil, invalid("unknown status %q", *p.Status)
	}

	rows := make([]model.NatcoStatus, 0, len(p.IDs))
	for _, id := range p.IDs {
		r, err := s.store.GetNatcoRow(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Status != nil {
			r.Status = *p.Status
		}
		if p.Applicable != nil {
			r.Applicable = *p.Applicable
		}
		r.ModifiedBy = actor
		rows = append(rows, r)
	}
	if err := s.store.SaveNatcoRows(ctx, rows); err != nil {
		return nil, fmt.Errorf("updating natco rows: %w", err)
	}
	for _, r := range rows {
		s.dispatch.Dispatch(ctx, rules.NatcoRowSaved{Row: r, Actor: actor})
	}
	return rows, nil
}

// --- Scripts and issues ---

// CreateScript stores a script. Its type always follows the test case.
func (s *Service) CreateScript(ctx context.Context, actor string, sc model.Script) (model.Script, error) {
	tc, err := s.store.GetTestCase(ctx, sc.TestCaseID)
	if err != nil {
		return sc, err
	}
	if sc.Name == "" {
		return sc, invalid("script name is required")
	}
	sc.Type = tc.Type
	sc.ModifiedBy = actor
	if sc.DevelopedBy == "" {
		sc.DevelopedBy = actor
	}
	created, err := s.store.CreateScript(ctx, sc)
	if err != nil {
		return created, fmt.Errorf("creating script: %w", err)
	}
	s.dispatch.Dispatch(ctx, rules.ScriptSaved{Script: created, Created: true, Actor: actor})
	return created, nil
}

func (s *Service) GetScript(ctx context.Context, id int64) (model.Script, error) {
	return s.store.GetScript(ctx, id)
}

func (s *Service) ListScripts(ctx context.Context, testCaseID int64) ([]model.Script, error) {
	return s.store.ListScripts(ctx, testCaseID)
}

func (s *Service) CreateIssue(ctx context.Context, actor string, is model.ScriptIssue) (model.ScriptIssue, error) {
	if _, err := s.store.GetScript(ctx, is.ScriptID); err != nil {
		return is, err
	}
	if is.Summary == "" {
		return is, invalid("issue summary is required")
	}
	is.Status = model.IssueOpen
	is.CreatedBy = actor
	is.ResolvedBy = ""
	created, err := s.store.CreateIssue(ctx, is)
	if err != nil {
		return created, fmt.Errorf("creating issue: %w", err)
	}
	s.dispatch.Dispatch(ctx, rules.ScriptIssueSaved{Issue: created, Created: true, Actor: actor})
	return created, nil
}

func (s *Service) GetIssue(ctx context.Context, id int64) (model.ScriptIssue, error) {
	return s.store.GetIssue(ctx, id)
}

func (s *Service) ListIssues(ctx context.Context, scriptID int64) ([]model.ScriptIssue, error) {
	return s.store.ListIssues(ctx, scriptID)
}

func (s *Service) UpdateIssue(ctx context.Context, actor string, id int64, p model.IssuePatch) (model.ScriptIssue, error) {
	is, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return is, err
	}
	if p.Summary != nil {
		is.Summary = *p.Summary
	}
	if p.Description != nil {
		is.Description = *p.Description
	}
	if p.Result != nil {
		is.Result = *p.Result
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return is, invalid("unknown issue status %q", *p.Status)
		}
		is.Status = *p.Status
	}
	if p.ResolvedBy != nil {
		is.ResolvedBy = *p.ResolvedBy
	}
	saved, err := s.store.SaveIssue(ctx, is)
	if err != nil {
		return saved, fmt.Errorf("saving issue %d: %w", id, err)
	}
	s.dispatch.Dispatch(ctx, rules.ScriptIssueSaved{Issue: saved, Actor: actor})
	return saved, nil
}

// --- Comments ---

// resolveTarget checks that the target kind is known and the entity exists.
func (s *Service) resolveTarget(ctx context.Context, t model.Target) error {
	lookup, ok := s.targets[t.Kind]
	if !ok {
		return invalid("unknown target kind %q", t.Kind)
	}
	return lookup(ctx, t.ID)
}

func (s *Service) AddComment(ctx context.Context, actor string, target model.Target, body string) (model.Comment, error) {
	if body == "" {
		return model.Comment{}, invalid("comment is empty")
	}
	if err := s.resolveTarget(ctx, target); err != nil {
		return model.Comment{}, err
	}
	return s.store.CreateComment(ctx, model.Comment{Target: target, Body: body, CreatedBy: actor})
}

func (s *Service) ListComments(ctx context.Context, target model.Target) ([]model.Comment, error) {
	if err := s.resolveTarget(ctx, target); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, target)
}

func (s *Service) ownComment(ctx context.Context, actor string, id int64) (model.Comment, error) {
	c, err := s.store.GetComment(ctx, id)
	if err != nil {
		return c, err
	}
	if c.CreatedBy != actor {
		return c, ErrNotOwner
	}
	return c, nil
}

func (s *Service) UpdateComment(ctx context.Context, actor string, id int64, body string) (model.Comment, error) {
	if body == "" {
		return model.Comment{}, invalid("comment is empty")
	}
	c, err := s.ownComment(ctx, actor, id)
	if err != nil {
		return c, err
	}
	c.Body = body
	return s.store.SaveComment(ctx, c)
}

func (s *Service) DeleteComment(ctx context.Context, actor string, id int64) error {
	if _, err := s.ownComment(ctx, actor, id); err != nil {
		return err
	}
	return s.store.DeleteComment(ctx, id)
}

// --- Notifications ---

func (s *Service) Notifications(ctx context.Context, actor string, unreadOnly bool) ([]model.Notification, error) {
	return s.store.ListNotifications(ctx, actor, unreadOnly)
}

func (s *Service) MarkRead(ctx context.Context, actor string, id int64) error {
	return s.store.MarkNotificationRead(ctx, id, actor)
}

func (s *Service) ClearNotifications(ctx context.Context, actor string) (int64, error) {
	return s.store.ClearNotifications(ctx, actor)
}
