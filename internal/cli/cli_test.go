package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/innowave/analytiqa/internal/model"
)

const suite = `<testsuite name="boot" tests="3" failures="1" time="40" timestamp="2026-10-01T10:00:00">
	<testcase name="test_cold_boot" classname="tests.boot" time="10"></testcase>
	<testcase name="test_warm_boot" classname="tests.boot" time="30">
		<failure message="no video after 60s">MatchTimeout</failure>
	</testcase>
	<testcase name="test_standby" classname="tests.boot" time="0"><skipped/></testcase>
</testsuite>`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReportResults(t *testing.T) {
	var got []model.STBResult
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/scripts/7/results" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if u := r.Header.Get(userHeader); u != "ci@example.com" {
			t.Errorf("user header: got %q", u)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int{"inserted": len(got)})
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := ReportResults(ResultsReport{
		Server:   srv.URL,
		User:     "ci@example.com",
		ScriptID: 7,
		RunID:    "nightly-42",
		Files:    []string{writeFile(t, "boot.xml", suite)},
		Out:      &out,
	})
	if err != nil {
		t.Fatalf("ReportResults: %v", err)
	}

	var ids []string
	for _, r := range got {
		ids = append(ids, r.ResultID)
	}
	want := []string{"nightly-42/tests.boot.test_cold_boot", "nightly-42/tests.boot.test_warm_boot"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("result ids mismatch (-want +got):\n%s", diff)
	}
	if got[1].Result != model.ResultFail || got[1].FailureReason != "no video after 60s" {
		t.Errorf("failed case: got %+v", got[1])
	}
	if !strings.Contains(out.String(), "inserted=2") {
		t.Errorf("summary: got %q", out.String())
	}
}

func TestReportResultsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"not found"}`)
	}))
	defer srv.Close()

	err := ReportResults(ResultsReport{
		Server:   srv.URL,
		ScriptID: 9,
		Files:    []string{writeFile(t, "boot.xml", suite)},
		Out:      io.Discard,
	})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected 404 error, got %v", err)
	}
}

func TestReportResultsBadFile(t *testing.T) {
	err := ReportResults(ResultsReport{Server: "http://unused", Files: []string{"/nonexistent.xml"}})
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestImportWorksheetWait(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/imports":
			f, hdr, err := r.FormFile("file")
			if err != nil {
				t.Fatalf("FormFile: %v", err)
			}
			f.Close()
			if hdr.Filename != "export.xlsx" {
				t.Errorf("filename: got %q", hdr.Filename)
			}
			w.WriteHeader(http.StatusAccepted)
			io.WriteString(w, `{"job_id":"j1","status":"processing"}`)
		case "/api/v1/jobs/j1":
			if polls.Add(1) < 2 {
				io.WriteString(w, `{"id":"j1","state":"running"}`)
				return
			}
			io.WriteString(w, `{"id":"j1","state":"succeeded","result":{"message":"TestCase Uploaded Successfully","created":3,"skipped":1,"warnings":["row 4: bad key"]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := ImportWorksheet(context.Background(), ImportRequest{
		Server:       srv.URL,
		User:         "qa@example.com",
		File:         writeFile(t, "export.xlsx", "xlsx bytes"),
		Wait:         true,
		PollInterval: time.Millisecond,
		Out:          &out,
	})
	if err != nil {
		t.Fatalf("ImportWorksheet: %v", err)
	}
	want := "Import queued: job=j1\nTestCase Uploaded Successfully: 3 created, 1 skipped\n  warning: row 4: bad key\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestImportWorksheetFailedJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/imports" {
			w.WriteHeader(http.StatusAccepted)
			io.WriteString(w, `{"job_id":"j2"}`)
			return
		}
		io.WriteString(w, `{"id":"j2","state":"failed","error":"missing \"Key\" column"}`)
	}))
	defer srv.Close()

	err := ImportWorksheet(context.Background(), ImportRequest{
		Server: srv.URL,
		File:   writeFile(t, "export.xlsx", "x"),
		Wait:   true,
		Out:    io.Discard,
	})
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("expected job failure, got %v", err)
	}
}

func TestImportWorksheetRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"not a workbook"}`)
	}))
	defer srv.Close()

	err := ImportWorksheet(context.Background(), ImportRequest{Server: srv.URL, File: writeFile(t, "a.xlsx", "x"), Out: io.Discard})
	if err == nil || !strings.Contains(err.Error(), "not a workbook") {
		t.Errorf("expected rejection, got %v", err)
	}
}
