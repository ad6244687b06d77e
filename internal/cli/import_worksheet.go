package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

type ImportRequest struct {
	Server string
	User   string
	File   string
	// Wait polls the import job until it finishes.
	Wait         bool
	PollInterval time.Duration
	Out          io.Writer
}

type importJob struct {
	ID     string          `json:"id"`
	State  string          `json:"state"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

type importOutcome struct {
	Message  string   `json:"message"`
	Created  int      `json:"created"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings"`
}

// ImportWorksheet uploads a test case export and, when Wait is set,
// reports how the import ended.
func ImportWorksheet(ctx context.Context, r ImportRequest) error {
	out := r.Out
	if out == nil {
		out = os.Stdout
	}
	data, err := os.ReadFile(r.File)
	if err != nil {
		return fmt.Errorf("read %s: %w", r.File, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(r.File))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Server+"/api/v1/imports", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(userHeader, r.User)

	var accepted struct {
		JobID string `json:"job_id"`
		Error string `json:"error"`
	}
	code, err := doJSON(req, &accepted)
	if err != nil {
		return fmt.Errorf("POST import: %w", err)
	}
	if code != http.StatusAccepted {
		return fmt.Errorf("server returned %d: %s", code, accepted.Error)
	}
	fmt.Fprintf(out, "Import queued: job=%s\n", accepted.JobID)
	if !r.Wait {
		return nil
	}

	interval := r.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := getJob(ctx, r.Server, accepted.JobID)
		if err != nil {
			return err
		}
		switch job.State {
		case "succeeded":
			var res importOutcome
			if err := json.Unmarshal(job.Result, &res); err != nil {
				return fmt.Errorf("decode import result: %w", err)
			}
			fmt.Fprintf(out, "%s: %d created, %d skipped\n", res.Message, res.Created, res.Skipped)
			for _, w := range res.Warnings {
				fmt.Fprintf(out, "  warning: %s\n", w)
			}
			return nil
		case "failed":
			return fmt.Errorf("import failed: %s", job.Error)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func getJob(ctx context.Context, server, id string) (importJob, error) {
	var job importJob
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/api/v1/jobs/"+id, nil)
	if err != nil {
		return job, err
	}
	code, err := doJSON(req, &job)
	if err != nil {
		return job, fmt.Errorf("GET job %s: %w", id, err)
	}
	if code != http.StatusOK {
		return job, fmt.Errorf("GET job %s: server returned %d", id, code)
	}
	return job, nil
}

func doJSON(req *http.Request, v any) (int, error) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
