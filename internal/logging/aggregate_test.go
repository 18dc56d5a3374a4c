package logging

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleLog = `{"time":"2026-01-02T10:00:02Z","level":"INFO","msg":"ranked","folder_id":"f1","phase":"rank","records":12}
not json
{"time":"2026-01-02T10:00:00Z","level":"DEBUG","msg":"loading annotations","folder_id":"f1","phase":"load"}

{"time":"2026-01-02T10:00:05Z","level":"WARN","msg":"job failed","folder_id":"f1","job_id":"j9","component":"poller"}
{"time":"2026-01-02T10:00:07Z","level":"ERROR","msg":"save labels failed","folder_id":"f2","component":"savequeue","image_id":"img-3"}
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LogFileName), []byte(sampleLog), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestReadLogs(t *testing.T) {
	dir := writeSample(t)
	backup := `{"time":"2026-01-01T09:00:00Z","level":"INFO","msg":"opened","folder_id":"f1"}` + "\n"
	if err := os.WriteFile(filepath.Join(dir, LogFileName+".1"), []byte(backup), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadLogs(dir)
	if err != nil {
		t.Fatalf("ReadLogs() error: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("len(entries) = %d, want 5", len(entries))
	}

	wantOrder := []string{"opened", "loading annotations", "ranked", "job failed", "save labels failed"}
	for i, want := range wantOrder {
		if entries[i].Message != want {
			t.Errorf("entries[%d].Message = %q, want %q", i, entries[i].Message, want)
		}
	}

	ranked := entries[2]
	if ranked.Phase != "rank" || ranked.FolderID != "f1" || ranked.Attrs["records"] != float64(12) {
		t.Errorf("ranked entry = %+v", ranked)
	}
	if _, ok := ranked.Attrs["msg"]; ok {
		t.Error("standard fields should not be repeated in Attrs")
	}
}

func TestReadLogs_Missing(t *testing.T) {
	if _, err := ReadLogs(t.TempDir()); err == nil {
		t.Error("ReadLogs() on empty dir should fail")
	}
}

func TestFilterEntries(t *testing.T) {
	entries, err := Parse(strings.NewReader(sampleLog))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"empty", Filter{}, 4},
		{"level warn", Filter{Level: "warn"}, 2},
		{"folder", Filter{FolderID: "f1"}, 3},
		{"job", Filter{JobID: "j9"}, 1},
		{"phase", Filter{Phase: "load"}, 1},
		{"component", Filter{Component: "savequeue"}, 1},
		{"contains", Filter{Contains: "fail"}, 2},
		{"since", Filter{Since: time.Date(2026, 1, 2, 10, 0, 3, 0, time.UTC)}, 2},
		{"until", Filter{Until: time.Date(2026, 1, 2, 10, 0, 1, 0, time.UTC)}, 1},
		{"combined", Filter{FolderID: "f1", Level: "INFO"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilterEntries(entries, tt.filter); len(got) != tt.want {
				t.Errorf("FilterEntries() returned %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestExport(t *testing.T) {
	entries, _ := Parse(strings.NewReader(sampleLog))

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Export(&buf, entries, "json"); err != nil {
			t.Fatalf("Export() error: %v", err)
		}
		var back []Entry
		if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
			t.Fatalf("exported JSON is invalid: %v", err)
		}
		if len(back) != 4 || back[2].JobID != "j9" {
			t.Errorf("exported = %+v", back)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Export(&buf, entries, "TEXT"); err != nil {
			t.Fatalf("Export() error: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 4 {
			t.Fatalf("got %d lines, want 4", len(lines))
		}
		want := "[2026-01-02 10:00:05.000] WARN - job failed (folder=f1, job=j9, component=poller)"
		if lines[2] != want {
			t.Errorf("line = %q, want %q", lines[2], want)
		}
		if !strings.HasSuffix(lines[3], `{"image_id":"img-3"}`) {
			t.Errorf("attrs missing from %q", lines[3])
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Export(&buf, entries, "csv"); err != nil {
			t.Fatalf("Export() error: %v", err)
		}
		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("exported CSV is invalid: %v", err)
		}
		if len(records) != 5 || records[0][3] != "folder_id" || records[4][6] != "savequeue" {
			t.Errorf("records = %v", records)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if err := Export(&bytes.Buffer{}, entries, "xml"); err == nil {
			t.Error("Export() with unknown format should fail")
		}
	})
}
