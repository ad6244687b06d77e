// Package cli implements the client subcommands of analytiqactl. They
// talk to a running server over its HTTP API.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/innowave/analytiqa/internal/junit"
)

// userHeader names the acting user on every API request.
const userHeader = "X-User-Email"

type ResultsReport struct {
	Server   string
	User     string
	ScriptID int64
	RunID    string
	Files    []string
	// Out receives the summary line. Defaults to os.Stdout.
	Out io.Writer
}

// ReportResults parses JUnit XML files and posts every executed case as
// a run result of the script. Cases are keyed by run ID, so reporting
// the same run twice stores nothing new.
func ReportResults(r ResultsReport) error {
	var results []*junit.Result
	for _, f := range r.Files {
		res, err := junit.ParseFile(f)
		if err != nil {
			return fmt.Errorf("parse %s: %w", f, err)
		}
		results = append(results, res)
	}

	merged := junit.MergeResults(results...)
	runID := r.RunID
	if runID == "" {
		runID = fmt.Sprintf("junit-%d", time.Now().Unix())
	}
	body := merged.STBResults(r.ScriptID, runID, time.Now().UTC())

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/scripts/%d/results", r.Server, r.ScriptID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(userHeader, r.User)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST results: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned %d: %v", resp.StatusCode, result["error"])
	}

	out := r.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "Results reported: run=%s inserted=%v (%d passed, %d failed, %d skipped)\n",
		runID, result["inserted"], merged.Passed, merged.Failed, merged.Skipped)
	return nil
}
