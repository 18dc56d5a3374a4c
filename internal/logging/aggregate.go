package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Entry is one parsed log line.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	FolderID  string         `json:"folder_id,omitempty"`
	JobID     string         `json:"job_id,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Component string         `json:"component,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Filter selects entries. Zero fields match everything; set fields are ANDed.
type Filter struct {
	// Level keeps entries at or above this level.
	Level     string
	Since     time.Time
	Until     time.Time
	FolderID  string
	JobID     string
	Phase     string
	Component string
	// Contains keeps entries whose message contains this substring.
	Contains string
}

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ExportFormats lists the formats accepted by Export.
var ExportFormats = []string{"json", "text", "csv"}

// ReadLogs parses {dir}/labelflow.log and its uncompressed backups, sorted by
// time. Lines that are not JSON objects are skipped.
func ReadLogs(dir string) ([]Entry, error) {
	path := filepath.Join(dir, LogFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no log file in %s: %w", dir, err)
		}
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	backups, _ := filepath.Glob(path + ".[0-9]*")
	var entries []Entry
	for _, p := range append(backups, path) {
		if strings.HasSuffix(p, ".gz") {
			continue
		}
		parsed, err := readFile(p)
		if err != nil {
			return nil, err
		}
		entries = append(entries, parsed...)
	}

	slices.SortStableFunc(entries, func(a, b Entry) int {
		return a.Time.Compare(b.Time)
	})
	return entries, nil
}

func readFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse reads JSON log lines from r.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	const maxLine = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	var entries []Entry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}
	return entries, nil
}

func parseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	str := func(key string) string {
		s, _ := raw[key].(string)
		delete(raw, key)
		return s
	}

	e := Entry{
		Level:     str("level"),
		Message:   str("msg"),
		FolderID:  str("folder_id"),
		JobID:     str("job_id"),
		Phase:     str("phase"),
		Component: str("component"),
	}
	if ts := str("time"); ts != "" {
		e.Time, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if len(raw) > 0 {
		e.Attrs = raw
	}
	return e, nil
}

// Match reports whether e satisfies f.
func (f Filter) Match(e Entry) bool {
	if f.Level != "" {
		want, ok1 := levelRank[strings.ToUpper(f.Level)]
		got, ok2 := levelRank[e.Level]
		if ok1 && ok2 && got < want {
			return false
		}
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Time.After(f.Until) {
		return false
	}
	for _, c := range [][2]string{
		{f.FolderID, e.FolderID},
		{f.JobID, e.JobID},
		{f.Phase, e.Phase},
		{f.Component, e.Component},
	} {
		if c[0] != "" && c[0] != c[1] {
			return false
		}
	}
	return f.Contains == "" || strings.Contains(e.Message, f.Contains)
}

// FilterEntries returns the entries matching f.
func FilterEntries(entries []Entry, f Filter) []Entry {
	if f == (Filter{}) {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Export writes entries to w as json, text or csv.
func Export(w io.Writer, entries []Entry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text":
		return exportText(w, entries)
	case "csv":
		return exportCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: %s)", format, strings.Join(ExportFormats, ", "))
	}
}

// FormatText renders one entry as a single line:
//
//	[2006-01-02 15:04:05.000] LEVEL - message (folder=.., job=..) {attrs}
func FormatText(e Entry) string {
	parts := []string{
		fmt.Sprintf("[%s]", e.Time.Format("2006-01-02 15:04:05.000")),
		e.Level, "-", e.Message,
	}

	var ctx []string
	for _, kv := range [][2]string{
		{"folder", e.FolderID},
		{"job", e.JobID},
		{"phase", e.Phase},
		{"component", e.Component},
	} {
		if kv[1] != "" {
			ctx = append(ctx, kv[0]+"="+kv[1])
		}
	}
	if len(ctx) > 0 {
		parts = append(parts, "("+strings.Join(ctx, ", ")+")")
	}
	if len(e.Attrs) > 0 {
		attrs, _ := json.Marshal(e.Attrs)
		parts = append(parts, string(attrs))
	}
	return strings.Join(parts, " ")
}

func exportText(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, FormatText(e)); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

func exportCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "level", "message", "folder_id", "job_id", "phase", "component", "attrs"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, e := range entries {
		attrs := ""
		if len(e.Attrs) > 0 {
			if b, err := json.Marshal(e.Attrs); err == nil {
				attrs = string(b)
			}
		}
		record := []string{
			e.Time.Format(time.RFC3339Nano),
			e.Level, e.Message,
			e.FolderID, e.JobID, e.Phase, e.Component,
			attrs,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
