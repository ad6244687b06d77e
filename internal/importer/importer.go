// Package importer loads test cases from a spreadsheet export.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/innowave/analytiqa/internal/model"
	"github.com/innowave/analytiqa/internal/worksheet"
)

const (
	MsgUploaded        = "TestCase Uploaded Successfully"
	MsgAlreadyPresent  = "TestCases Already Present in the DataBase"
	NotifyUploadOK     = "Testcases Uploaded Successfully!"
	NotifyUploadFailed = "Testcases Uploaded Failed!"
)

var statusLookup = map[string]model.Status{
	"To Do":     model.StatusTodo,
	"Completed": model.StatusCompleted,
	"Ongoing":   model.StatusOngoing,
}

var priorityLookup = map[string]model.Priority{
	"Class 1": model.PriorityClass1,
	"Class 2": model.PriorityClass2,
	"Class 3": model.PriorityClass3,
}

var typeLookup = map[string]model.TestCaseType{
	"Performance": model.TypePerformance,
	"Soak":        model.TypeSoak,
	"Smoke":       model.TypeSmoke,
}

func lookup[T any](table map[string]T, cell string, fallback T) T {
	if v, ok := table[cell]; ok {
		return v
	}
	return fallback
}

// Store is the persistence the importer needs.
type Store interface {
	ExistingJiraIDs(ctx context.Context) (map[int64]bool, error)
	// InsertTestCases writes all test cases in one transaction and
	// returns them with their assigned IDs.
	InsertTestCases(ctx context.Context, tcs []model.TestCase) ([]model.TestCase, error)
	SetTestCaseTags(ctx context.Context, testCaseID int64, tags []string) error
	CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error)
}

// Result is the outcome envelope of one import run.
type Result struct {
	Status     bool     `json:"status"`
	StatusCode int      `json:"status_code"`
	Data       string   `json:"data"`
	Message    string   `json:"message"`
	Created    int      `json:"created"`
	Skipped    int      `json:"skipped"`
	Warnings   []string `json:"warnings,omitempty"`
}

type Importer struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Importer {
	return &Importer{store: store, logger: logger}
}

// Import creates every test case of the sheet whose key is not already
// stored. It never returns an error; failures are reported in the
// Result and through a notification to user.
func (im *Importer) Import(ctx context.Context, sheet *worksheet.Sheet, user string) Result {
	res := Result{Status: true, StatusCode: http.StatusOK}

	pending, err := im.collect(ctx, sheet, user, &res)
	if err != nil {
		return im.fail(ctx, res, user, err)
	}
	if len(pending) == 0 {
		res.Data = "Success"
		res.Message = MsgAlreadyPresent
		return res
	}

	tcs := make([]model.TestCase, len(pending))
	for i, p := range pending {
		tcs[i] = p.tc
	}
	created, err := im.store.InsertTestCases(ctx, tcs)
	if err != nil {
		return im.fail(ctx, res, user, fmt.Errorf("bulk insert: %w", err))
	}
	for i, tc := range created {
		tags := pending[i].tags
		if len(tags) == 0 {
			continue
		}
		if err := im.store.SetTestCaseTags(ctx, tc.ID, tags); err != nil {
			return im.fail(ctx, res, user, fmt.Errorf("tagging test case %d: %w", tc.ID, err))
		}
	}
	res.Created = len(created)

	im.notify(ctx, user, NotifyUploadOK, true)
	im.logger.Info("worksheet imported", "user", user, "created", res.Created, "skipped", res.Skipped)
	res.Data = "Success"
	res.Message = MsgUploaded
	return res
}

type pendingCase struct {
	tc   model.TestCase
	tags []string
}

func (im *Importer) collect(ctx context.Context, sheet *worksheet.Sheet, user string, res *Result) ([]pendingCase, error) {
	if _, ok := sheet.Column(ColKey); !ok {
		return nil, fmt.Errorf("missing %q column", ColKey)
	}
	existing, err := im.store.ExistingJiraIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading existing keys: %w", err)
	}
	if existing == nil {
		existing = make(map[int64]bool)
	}
	steps, err := ParseSteps(sheet)
	if err != nil {
		return nil, fmt.Errorf("parsing steps: %w", err)
	}

	var out []pendingCase
	for i, row := range sheet.Rows() {
		key := row.Get(ColKey)
		if key == "" {
			continue
		}
		jiraID, err := jiraNumber(key)
		if err != nil {
			res.Skipped++
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: %v", i+2, err))
			im.logger.Warn("skipping row", "row", i+2, "key", key, "error", err)
			continue
		}
		if existing[jiraID] {
			res.Skipped++
			continue
		}
		existing[jiraID] = true

		summary := row.Get(ColSummary)
		out = append(out, pendingCase{
			tc: model.TestCase{
				JiraID:           &jiraID,
				Name:             summary,
				Summary:          summary,
				Description:      summary,
				Priority:         lookup(priorityLookup, row.Get(ColPriority), model.PriorityClass3),
				Status:           lookup(statusLookup, row.Get(ColStatus), model.StatusTodo),
				AutomationStatus: model.AutomationNotAutomatable,
				Type:             lookup(typeLookup, row.Get(ColTestType), model.TypePerformance),
				Steps:            steps[key].Clone(),
				Reporter:         row.Get(ColReporter),
				CreatedBy:        user,
			},
			tags: splitLabels(row.Get(ColLabels)),
		})
	}
	return out, nil
}

func (im *Importer) fail(ctx context.Context, res Result, user string, err error) Result {
	im.logger.Error("worksheet import failed", "user", user, "error", err)
	im.notify(ctx, user, NotifyUploadFailed, false)
	res.Status = false
	res.StatusCode = http.StatusBadRequest
	res.Data = ""
	res.Message = err.Error()
	res.Created = 0
	return res
}

func (im *Importer) notify(ctx context.Context, user, msg string, ok bool) {
	n := model.Notification{
		Message:   msg,
		Sender:    user,
		Recipient: user,
		Target:    model.TestCaseTarget(0),
		Status:    ok,
	}
	if _, err := im.store.CreateNotification(ctx, n); err != nil {
		im.logger.Error("creating import notification", "user", user, "error", err)
	}
}

// jiraNumber returns the integer after the last "-" of a key like ABC-123.
func jiraNumber(key string) (int64, error) {
	i := strings.LastIndex(key, "-")
	if i < 0 || i == len(key)-1 {
		return 0, fmt.Errorf("key %q has no numeric suffix", key)
	}
	n, err := strconv.ParseInt(key[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("key %q has no numeric suffix", key)
	}
	return n, nil
}

func splitLabels(cell string) []string {
	if cell == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(cell, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
