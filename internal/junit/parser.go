// Package junit reads JUnit XML run reports produced by device-farm jobs.
package junit

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/innowave/analytiqa/internal/model"
)

type xmlTestSuites struct {
	XMLName    xml.Name       `xml:"testsuites"`
	TestSuites []xmlTestSuite `xml:"testsuite"`
}

type xmlTestSuite struct {
	XMLName   xml.Name      `xml:"testsuite"`
	Name      string        `xml:"name,attr"`
	Tests     int           `xml:"tests,attr"`
	Failures  int           `xml:"failures,attr"`
	Errors    int           `xml:"errors,attr"`
	Skipped   int           `xml:"skipped,attr"`
	Time      float64       `xml:"time,attr"`
	Timestamp string        `xml:"timestamp,attr"`
	TestCases []xmlTestCase `xml:"testcase"`
}

type xmlTestCase struct {
	Name      string      `xml:"name,attr"`
	ClassName string      `xml:"classname,attr"`
	Time      float64     `xml:"time,attr"`
	Failure   *xmlFailure `xml:"failure"`
	Error     *xmlFailure `xml:"error"`
	Skipped   *xmlSkipped `xml:"skipped"`
}

type xmlFailure struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

type xmlSkipped struct {
	Message string `xml:"message,attr"`
}

// Case is one test case of a report. Outcome is empty for skipped cases.
type Case struct {
	Name        string
	ClassName   string
	DurationSec float64
	Outcome     model.ResultOutcome
	Skipped     bool
	FailureMsg  string
	FailureText string
	// Started is the suite timestamp plus the durations of the cases
	// before this one, zero when the suite has no timestamp.
	Started time.Time
}

type Result struct {
	Total       int
	Passed      int
	Failed      int
	Skipped     int
	DurationSec float64
	Cases       []Case
}

// ParseFile parses a JUnit XML file and returns aggregated results.
func ParseFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses JUnit XML data. Handles both <testsuites> and bare <testsuite> roots.
func Parse(data []byte) (*Result, error) {
	var suites xmlTestSuites
	if err := xml.Unmarshal(data, &suites); err == nil && len(suites.TestSuites) > 0 {
		return aggregate(suites.TestSuites), nil
	}

	var suite xmlTestSuite
	if err := xml.Unmarshal(data, &suite); err == nil {
		return aggregate([]xmlTestSuite{suite}), nil
	}

	return nil, fmt.Errorf("unrecognized JUnit XML format")
}

var timestampLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func aggregate(suites []xmlTestSuite) *Result {
	r := &Result{}
	for _, s := range suites {
		r.DurationSec += s.Time
		clock := parseTimestamp(s.Timestamp)
		for _, tc := range s.TestCases {
			c := Case{
				Name:        tc.Name,
				ClassName:   tc.ClassName,
				DurationSec: tc.Time,
				Started:     clock,
			}
			if !clock.IsZero() {
				clock = clock.Add(seconds(tc.Time))
			}

			switch {
			case tc.Failure != nil:
				c.Outcome = model.ResultFail
				c.FailureMsg = tc.Failure.Message
				c.FailureText = tc.Failure.Text
				r.Failed++
			case tc.Error != nil:
				c.Outcome = model.ResultError
				c.FailureMsg = tc.Error.Message
				c.FailureText = tc.Error.Text
				r.Failed++
			case tc.Skipped != nil:
				c.Skipped = true
				r.Skipped++
			default:
				c.Outcome = model.ResultPass
				r.Passed++
			}

			r.Total++
			r.Cases = append(r.Cases, c)
		}
	}
	return r
}

// MergeResults merges multiple Result objects into one.
func MergeResults(results ...*Result) *Result {
	merged := &Result{}
	for _, r := range results {
		merged.Total += r.Total
		merged.Passed += r.Passed
		merged.Failed += r.Failed
		merged.Skipped += r.Skipped
		merged.DurationSec += r.DurationSec
		merged.Cases = append(merged.Cases, r.Cases...)
	}
	return merged
}

// STBResults converts the executed cases of r into run results of a
// script. Result IDs are "<runID>/<classname>.<name>" so re-reporting the
// same run is idempotent. Cases without a suite timestamp start at
// fallback.
func (r *Result) STBResults(scriptID int64, runID string, fallback time.Time) []model.STBResult {
	var out []model.STBResult
	for _, c := range r.Cases {
		if c.Skipped {
			continue
		}
		start := c.Started
		if start.IsZero() {
			start = fallback.UTC()
		}
		name := c.Name
		if c.ClassName != "" {
			name = c.ClassName + "." + c.Name
		}
		reason := c.FailureMsg
		if reason == "" {
			reason = c.FailureText
		}
		out = append(out, model.STBResult{
			ResultID:      runID + "/" + name,
			JobUID:        runID,
			StartTime:     start,
			EndTime:       start.Add(seconds(c.DurationSec)),
			ScriptID:      scriptID,
			Result:        c.Outcome,
			FailureReason: reason,
		})
	}
	return out
}
