package importer

import (
	"fmt"

	"github.com/innowave/analytiqa/internal/model"
	"github.com/innowave/analytiqa/internal/worksheet"
)

// Worksheet column names.
const (
	ColKey       = "Key"
	ColSummary   = "Summary"
	ColPriority  = "Priority"
	ColStatus    = "Status"
	ColReporter  = "Reporter"
	ColLabels    = "Labels"
	ColTestType  = "Test Type"
	ColStepsMark = "Manual Test Steps"
)

type stepKind string

const (
	kindAction   stepKind = "Action"
	kindData     stepKind = "Data"
	kindExpected stepKind = "Expected Result"
)

func asKind(s string) (stepKind, bool) {
	switch k := stepKind(s); k {
	case kindAction, kindData, kindExpected:
		return k, true
	}
	return "", false
}

type fragment struct {
	key   string
	kind  stepKind
	value string
}

// ParseSteps rebuilds the numbered steps of every test case key in the
// sheet. The step values live in the column right after "Manual Test
// Steps". A kind label (Action, Data, Expected Result) is taken either
// from a value cell holding only the label or from the "Manual Test
// Steps" cell of the same row. Both the key and the kind carry forward
// over rows that leave them empty.
//
// Every key seen gets an entry, possibly empty. Data and Expected Result
// values that arrive before any Action of their key are dropped.
func ParseSteps(sheet *worksheet.Sheet) (map[string]model.Steps, error) {
	keyCol, ok := sheet.Column(ColKey)
	if !ok {
		return nil, fmt.Errorf("missing %q column", ColKey)
	}
	markCol, ok := sheet.Column(ColStepsMark)
	if !ok {
		return nil, fmt.Errorf("missing %q column", ColStepsMark)
	}

	out := make(map[string]model.Steps)
	var frags []fragment
	var key string
	var kind stepKind

	for _, row := range sheet.Rows() {
		if k := row.At(keyCol); k != "" {
			key = k
			if _, seen := out[key]; !seen {
				out[key] = model.Steps{}
			}
		}
		if key == "" {
			continue
		}
		if k, ok := asKind(row.At(markCol)); ok {
			kind = k
		}
		value := row.At(markCol + 1)
		if k, ok := asKind(value); ok {
			kind = k
			continue
		}
		if value == "" || kind == "" {
			continue
		}
		frags = append(frags, fragment{key: key, kind: kind, value: value})
	}

	var (
		current *model.Step
		group   string
	)
	flush := func() {
		if current != nil {
			out[group].Add(*current)
			current = nil
		}
	}
	for _, f := range frags {
		if f.key != group {
			flush()
			group = f.key
		}
		switch f.kind {
		case kindAction:
			flush()
			current = &model.Step{Action: f.value}
		case kindData:
			if current != nil {
				current.Data = f.value
			}
		case kindExpected:
			if current == nil {
				continue
			}
			if current.ExpectedResult == "" {
				current.ExpectedResult = f.value
			} else {
				current.ExpectedResult += " " + f.value
			}
		}
	}
	flush()
	return out, nil
}
