// Package history computes and records the audit trail of test case edits.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/innowave/analytiqa/internal/model"
)

// Tracked field labels, in the order messages are built.
const (
	FieldDescription      = "Description"
	FieldName             = "Name"
	FieldStatus           = "Status"
	FieldAutomationStatus = "Automation Status"
	FieldPriority         = "Priority"
	FieldType             = "Testcase Type"
	FieldAssigned         = "Assigned"
)

type field struct {
	label string
	get   func(model.TestCase) string
}

var tracked = []field{
	{FieldDescription, func(tc model.TestCase) string { return tc.Description }},
	{FieldName, func(tc model.TestCase) string { return tc.Name }},
	{FieldStatus, func(tc model.TestCase) string { return string(tc.Status) }},
	{FieldAutomationStatus, func(tc model.TestCase) string { return string(tc.AutomationStatus) }},
	{FieldPriority, func(tc model.TestCase) string { return string(tc.Priority) }},
	{FieldType, func(tc model.TestCase) string { return string(tc.Type) }},
	{FieldAssigned, func(tc model.TestCase) string { return tc.Assigned }},
}

// Diff compares the tracked fields of before and after and returns
// "old changed to new" per changed field label.
func Diff(before, after model.TestCase) map[string]string {
	out := make(map[string]string)
	for _, f := range tracked {
		o, n := f.get(before), f.get(after)
		if o != n {
			out[f.label] = fmt.Sprintf("%s changed to %s", o, n)
		}
	}
	return out
}

// Message renders a diff as one line, fields in tracked order.
func Message(diff map[string]string) string {
	var parts []string
	for _, f := range tracked {
		if m, ok := diff[f.label]; ok {
			parts = append(parts, f.label+": "+m)
		}
	}
	return strings.Join(parts, "; ")
}

// Store saves a test case together with an optional history entry in
// one transaction.
type Store interface {
	SaveTestCaseWithHistory(ctx context.Context, tc model.TestCase, h *model.HistoryRecord) (model.TestCase, error)
}

type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Entry builds the history entry for the update before -> after. The
// entry keeps the pre-update status fields and a full snapshot of
// before. reason overrides the generated message. An update that
// changes no tracked field and carries no reason has no entry and
// returns ok == false.
func Entry(before, after model.TestCase, user, reason string) (rec model.HistoryRecord, ok bool) {
	diff := Diff(before, after)
	if len(diff) == 0 && reason == "" {
		return rec, false
	}
	if reason == "" {
		reason = Message(diff)
	}
	snapshot := before
	return model.HistoryRecord{
		TestCaseID:       before.ID,
		User:             user,
		Priority:         before.Priority,
		Type:             before.Type,
		Status:           before.Status,
		AutomationStatus: before.AutomationStatus,
		ChangeReason:     reason,
		ChangedFields:    diff,
		Snapshot:         &snapshot,
	}, true
}

// Save stores after and its history entry atomically. When the update
// has no entry only the test case is saved.
func (r *Recorder) Save(ctx context.Context, before, after model.TestCase, user, reason string) (model.TestCase, error) {
	rec, ok := Entry(before, after, user, reason)
	var h *model.HistoryRecord
	if ok {
		h = &rec
	}
	saved, err := r.store.SaveTestCaseWithHistory(ctx, after, h)
	if err != nil {
		return saved, fmt.Errorf("saving test case %d: %w", after.ID, err)
	}
	if ok {
		r.logger.Debug("history recorded", "testcase", before.ID, "user", user, "history", rec.ID, "fields", len(rec.ChangedFields))
	}
	return saved, nil
}
