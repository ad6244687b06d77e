package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/innowave/analytiqa/internal/importer"
	"github.com/innowave/analytiqa/internal/worksheet"
)

type memInbox struct {
	objects map[string][]byte
}

func (m *memInbox) ListPending(context.Context) ([]Upload, error) {
	var out []Upload
	for k := range m.objects {
		if u, ok := ParseUploadKey(k); ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memInbox) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return b, nil
}

func (m *memInbox) Put(_ context.Context, key, _ string, data []byte) error {
	m.objects[key] = data
	return nil
}

func (m *memInbox) Move(_ context.Context, src, dst string) error {
	m.objects[dst] = m.objects[src]
	delete(m.objects, src)
	return nil
}

func (m *memInbox) keys() []string {
	var out []string
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type recordingImporter struct {
	users []string
	rows  []int
}

func (r *recordingImporter) Import(_ context.Context, sheet *worksheet.Sheet, user string) importer.Result {
	r.users = append(r.users, user)
	r.rows = append(r.rows, sheet.Len())
	return importer.Result{Status: true, StatusCode: 201, Message: importer.MsgUploaded, Created: sheet.Len()}
}

func xlsx(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	return buf.Bytes()
}

func TestParseUploadKey(t *testing.T) {
	tests := []struct {
		key  string
		want Upload
		ok   bool
	}{
		{"imports/pending/qa@example.com/export.xlsx", Upload{Key: "imports/pending/qa@example.com/export.xlsx", User: "qa@example.com", Name: "export.xlsx"}, true},
		{"imports/pending/qa@example.com/EXPORT.XLSX", Upload{Key: "imports/pending/qa@example.com/EXPORT.XLSX", User: "qa@example.com", Name: "EXPORT.XLSX"}, true},
		{"imports/pending/export.xlsx", Upload{}, false},
		{"imports/pending/qa/sub/export.xlsx", Upload{}, false},
		{"imports/pending/qa/notes.txt", Upload{}, false},
		{"imports/done/qa/export.xlsx", Upload{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseUploadKey(tt.key)
		if ok != tt.ok {
			t.Errorf("%s: ok = %v, want %v", tt.key, ok, tt.ok)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", tt.key, diff)
		}
	}
}

func TestSyncOnce(t *testing.T) {
	inbox := &memInbox{objects: map[string][]byte{
		"imports/pending/qa@example.com/good.xlsx": xlsx(t,
			[]any{"Key", "Summary"},
			[]any{"PROJ-1", "Boot"},
			[]any{"PROJ-2", "Zap"},
		),
		"imports/pending/qa@example.com/broken.xlsx": []byte("not a workbook"),
	}}
	imp := &recordingImporter{}
	s := NewSyncer(inbox, imp, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	s.SyncOnce(context.Background())

	if diff := cmp.Diff([]string{"qa@example.com"}, imp.users); diff != "" {
		t.Errorf("import users mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2}, imp.rows); diff != "" {
		t.Errorf("imported rows mismatch (-want +got):\n%s", diff)
	}

	want := []string{
		"imports/done/qa@example.com/20260301T090000Z-good.xlsx",
		"imports/done/qa@example.com/20260301T090000Z-good.xlsx.result.json",
		"imports/failed/qa@example.com/20260301T090000Z-broken.xlsx",
		"imports/failed/qa@example.com/20260301T090000Z-broken.xlsx.result.json",
	}
	if diff := cmp.Diff(want, inbox.keys()); diff != "" {
		t.Errorf("bucket keys mismatch (-want +got):\n%s", diff)
	}

	var failed importer.Result
	if err := json.Unmarshal(inbox.objects[want[3]], &failed); err != nil {
		t.Fatalf("decode failed result: %v", err)
	}
	if failed.Status || failed.StatusCode != 400 || failed.Data != "" || failed.Message == "" {
		t.Errorf("failed result: got %+v, want reason in message", failed)
	}
}
