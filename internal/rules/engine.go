package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/innowave/analytiqa/internal/db"
	"github.com/innowave/analytiqa/internal/history"
	"github.com/innowave/analytiqa/internal/model"
)

// Store is the persistence the rules read and write.
type Store interface {
	GetTestCase(ctx context.Context, id int64) (model.TestCase, error)
	LatestHistory(ctx context.Context, testCaseID int64) (model.HistoryRecord, error)
	CountNatcoRows(ctx context.Context, testCaseID int64) (int, error)
	InsertNatcoRows(ctx context.Context, rows []model.NatcoStatus) error
	FindNatcoRow(ctx context.Context, testCaseID int64, natco, device, language string) (model.NatcoStatus, error)
	SaveNatcoRow(ctx context.Context, r model.NatcoStatus) (model.NatcoStatus, error)
	ListNatCos(ctx context.Context) ([]model.NatCo, error)
	StatusGroupFor(ctx context.Context, status model.AutomationStatus) (model.StatusGroup, error)
	GetScript(ctx context.Context, id int64) (model.Script, error)
	CountOpenIssues(ctx context.Context, testCaseID int64) (int, error)
	GetUser(ctx context.Context, email string) (model.User, error)
	CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error)
}

type Engine struct {
	store    Store
	history  *history.Recorder
	dispatch *Dispatcher
	logger   *slog.Logger
}

// NewEngine registers every propagation rule on d.
func NewEngine(store Store, rec *history.Recorder, d *Dispatcher, logger *slog.Logger) *Engine {
	e := &Engine{store: store, history: rec, dispatch: d, logger: logger}

	Subscribe(d, "natco-rows", e.createNatcoRows)
	Subscribe(d, "assignment-notification", e.notifyAssignee)
	Subscribe(d, "status-group-notification", e.notifyStatusGroup)

	Subscribe(d, "issue-opened-notification", e.notifyIssueOpened)
	Subscribe(d, "issue-resolved-notification", e.notifyIssueResolved)
	Subscribe(d, "issue-status", e.propagateIssueStatus)

	Subscribe(d, "script-applicable", e.markApplicable)
	Subscribe(d, "natco-row-status", e.propagateRowStatus)
	return e
}

// createNatcoRows builds one applicability row per natco and language
// the first time a test case leaves not-automatable.
func (e *Engine) createNatcoRows(ctx context.Context, ev TestCaseSaved) error {
	tc := ev.TestCase
	if tc.AutomationStatus == model.AutomationNotAutomatable {
		return nil
	}
	n, err := e.store.CountNatcoRows(ctx, tc.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	user := ev.Actor
	if h, err := e.store.LatestHistory(ctx, tc.ID); err == nil && h.User != "" {
		user = h.User
	}

	natcos, err := e.store.ListNatCos(ctx)
	if err != nil {
		return fmt.Errorf("listing natcos: %w", err)
	}
	var rows []model.NatcoStatus
	for _, nc := range natcos {
		for _, lang := range nc.Languages {
			rows = append(rows, model.NatcoStatus{
				TestCaseID: tc.ID,
				NatCo:      nc.Code,
				Language:   lang,
				Device:     nc.Manufacturer,
				Status:     model.AutomationManual,
				User:       user,
			})
		}
	}
	if len(rows) == 0 {
		e.logger.Warn("no natco rows to create", "testcase", tc.ID)
		return nil
	}
	if err := e.store.InsertNatcoRows(ctx, rows); err != nil {
		return fmt.Errorf("creating natco rows for test case %d: %w", tc.ID, err)
	}
	e.logger.Info("natco rows created", "testcase", tc.ID, "rows", len(rows))
	return nil
}

func (e *Engine) notifyAssignee(ctx context.Context, ev TestCaseSaved) error {
	tc := ev.TestCase
	var prev string
	if ev.Previous != nil {
		prev = ev.Previous.Assigned
	}
	if tc.Assigned == "" || tc.Assigned == prev {
		return nil
	}
	sender := e.sender(ev.Actor, tc.CreatedBy)
	return e.notify(ctx, model.Notification{
		Message:   fmt.Sprintf("Testcase ID %d is assigned to you by %s", tc.ID, e.displayName(ctx, sender)),
		Sender:    sender,
		Recipient: tc.Assigned,
		Target:    model.TestCaseTarget(tc.ID),
		Status:    true,
	})
}

func (e *Engine) notifyStatusGroup(ctx context.Context, ev TestCaseSaved) error {
	if ev.Previous == nil || ev.Previous.AutomationStatus == ev.TestCase.AutomationStatus {
		return nil
	}
	tc := ev.TestCase
	group, err := e.store.StatusGroupFor(ctx, tc.AutomationStatus)
	if errors.Is(err, db.ErrNotFound) || (err == nil && group.Owner == "") {
		return nil
	}
	if err != nil {
		return err
	}
	return e.notify(ctx, model.Notification{
		Message:   fmt.Sprintf("Testcase ID %d Status is now in %s", tc.ID, tc.AutomationStatus),
		Sender:    e.sender(ev.Actor, tc.CreatedBy),
		Recipient: group.Owner,
		Target:    model.TestCaseTarget(tc.ID),
		Status:    true,
	})
}

func (e *Engine) notifyIssueOpened(ctx context.Context, ev ScriptIssueSaved) error {
	if !ev.Created {
		return nil
	}
	sc, err := e.store.GetScript(ctx, ev.Issue.ScriptID)
	if err != nil {
		return err
	}
	if sc.DevelopedBy == "" {
		return nil
	}
	return e.notify(ctx, model.Notification{
		Message:   fmt.Sprintf("%s - Script issue Opened By %s", sc.Name, ev.Issue.CreatedBy),
		Sender:    ev.Issue.CreatedBy,
		Recipient: sc.DevelopedBy,
		Target:    model.ScriptIssueTarget(ev.Issue.ID),
		Status:    true,
	})
}

func (e *Engine) notifyIssueResolved(ctx context.Context, ev ScriptIssueSaved) error {
	if ev.Created || ev.Issue.ResolvedBy == "" {
		return nil
	}
	sc, err := e.store.GetScript(ctx, ev.Issue.ScriptID)
	if err != nil {
		return err
	}
	return e.notify(ctx, model.Notification{
		Message:   fmt.Sprintf("%s - %s Resolved by %s", sc.Name, ev.Issue.Summary, ev.Issue.ResolvedBy),
		Sender:    ev.Issue.CreatedBy,
		Recipient: ev.Issue.ResolvedBy,
		Target:    model.ScriptIssueTarget(ev.Issue.ID),
		Status:    true,
	})
}

// propagateIssueStatus maps an issue's workflow state onto the owning
// test case.
func (e *Engine) propagateIssueStatus(ctx context.Context, ev ScriptIssueSaved) error {
	sc, err := e.store.GetScript(ctx, ev.Issue.ScriptID)
	if err != nil {
		return err
	}
	var target model.AutomationStatus
	switch ev.Issue.Status {
	case model.IssueOpen:
		target = model.AutomationInDevelopment
	case model.IssueUnderReview:
		target = model.AutomationReview
	case model.IssueClosed:
		target = model.AutomationReady
	default:
		return nil
	}
	reason := fmt.Sprintf("Script issue %d is %s", ev.Issue.ID, ev.Issue.Status)
	return e.setAutomationStatus(ctx, sc.TestCaseID, target, ev.Actor, reason)
}

// markApplicable flags the applicability row matching a new script.
func (e *Engine) markApplicable(ctx context.Context, ev ScriptSaved) error {
	if !ev.Created {
		return nil
	}
	sc := ev.Script
	row, err := e.store.FindNatcoRow(ctx, sc.TestCaseID, sc.NatCo, sc.Device, sc.Language)
	if errors.Is(err, db.ErrNotFound) {
		e.logger.Debug("no natco row for script", "script", sc.ID, "natco", sc.NatCo, "device", sc.Device, "language", sc.Language)
		return nil
	}
	if err != nil {
		return err
	}
	if row.Applicable {
		return nil
	}
	row.Applicable = true
	row.ModifiedBy = ev.Actor
	row, err = e.store.SaveNatcoRow(ctx, row)
	if err != nil {
		return err
	}
	e.dispatch.Dispatch(ctx, NatcoRowSaved{Row: row, Actor: ev.Actor})
	return nil
}

var rowPropagates = map[model.AutomationStatus]bool{
	model.AutomationInDevelopment: true,
	model.AutomationReview:        true,
	model.AutomationReady:         true,
}

func (e *Engine) propagateRowStatus(ctx context.Context, ev NatcoRowSaved) error {
	if !rowPropagates[ev.Row.Status] {
		return nil
	}
	reason := fmt.Sprintf("Natco %s %s %s is %s", ev.Row.NatCo, ev.Row.Device, ev.Row.Language, ev.Row.Status)
	return e.setAutomationStatus(ctx, ev.Row.TestCaseID, ev.Row.Status, ev.Actor, reason)
}

// setAutomationStatus moves a test case to status, records history and
// raises TestCaseSaved. Ready is withheld while the test case has open
// issues.
func (e *Engine) setAutomationStatus(ctx context.Context, testCaseID int64, status model.AutomationStatus, actor, reason string) error {
	before, err := e.store.GetTestCase(ctx, testCaseID)
	if err != nil {
		return err
	}
	if before.AutomationStatus == status {
		return nil
	}
	if status == model.AutomationReady {
		open, err := e.store.CountOpenIssues(ctx, testCaseID)
		if err != nil {
			return err
		}
		if open > 0 {
			e.logger.Info("ready withheld, open issues remain", "testcase", testCaseID, "open", open)
			return nil
		}
	}

	after := before
	after.AutomationStatus = status
	saved, err := e.history.Save(ctx, before, after, actor, reason)
	if err != nil {
		return err
	}
	e.logger.Info("automation status propagated", "testcase", testCaseID, "from", before.AutomationStatus, "to", status)
	e.dispatch.Dispatch(ctx, TestCaseSaved{TestCase: saved, Previous: &before, Actor: actor})
	return nil
}

func (e *Engine) notify(ctx context.Context, n model.Notification) error {
	if _, err := e.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("notifying %s: %w", n.Recipient, err)
	}
	return nil
}

func (e *Engine) sender(actor, fallback string) string {
	if actor != "" {
		return actor
	}
	return fallback
}

func (e *Engine) displayName(ctx context.Context, email string) string {
	u, err := e.store.GetUser(ctx, email)
	if err != nil {
		return email
	}
	return u.DisplayName()
}
