package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/labelflow/internal/annotation"
	"github.com/Iron-Ham/labelflow/internal/category"
	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/groupconfig"
	"github.com/Iron-Ham/labelflow/internal/learning"
	"github.com/Iron-Ham/labelflow/internal/localstore"
	"github.com/Iron-Ham/labelflow/internal/ranking"
	"github.com/Iron-Ham/labelflow/internal/savequeue"
	"github.com/Iron-Ham/labelflow/internal/workflow"
)

const testFolder = "folder-1"

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// setupLocalFolder creates a local store with one image at epoch 1 and points
// the configuration at it. img-1 has labels and predictions.
func setupLocalFolder(t *testing.T) *localstore.Store {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	store, err := localstore.Open(dir)
	if err != nil {
		t.Fatalf("localstore.Open: %v", err)
	}
	ctx := context.Background()

	doc := &groupconfig.Document{AnnotationGroups: &groupconfig.Groups{
		ReplaceGroups: true,
		DefaultGroup:  "default",
		Groups: []groupconfig.Group{
			{ID: "default", FillColor: "rgba(0, 0, 0, 0)"},
			{ID: "Tumor", FillColor: "rgba(255, 0, 0, 0.5)", HotKey: "t"},
		},
	}}
	if err := store.WriteConfig(ctx, testFolder, doc); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	it := annotation.Item{ID: "img-1", Name: "img-1.svs", FolderID: testFolder, LargeImage: map[string]any{"fileId": "f1"}}
	if err := store.PutItem(it); err != nil {
		t.Fatalf("PutItem: %v", err)
	}
	putPixelmap(t, store, "Superpixel Epoch 1", []string{"default", "Stroma"}, []int{0, 1, 1}, nil)
	putPixelmap(t, store, "Superpixel Epoch 1 Predictions", []string{"default", "Stroma", "Tumor"}, []int{2, 1, 2}, []float64{0.9, 0.2, 0.5})

	viper.Set("store.backend", "local")
	viper.Set("store.local_dir", dir)
	viper.Set("folder.id", testFolder)
	viper.Set("job.poll_interval_ms", 100)
	return store
}

func putPixelmap(t *testing.T, store *localstore.Store, name string, labels []string, values []int, certainty []float64) {
	t.Helper()
	cats := make([]annotation.ElementCategory, len(labels))
	for i, l := range labels {
		cats[i] = annotation.ElementCategory{Label: l}
	}
	el := annotation.Element{
		Type:       annotation.ElementPixelmap,
		GirderID:   "superpixels-img-1",
		Values:     values,
		Categories: cats,
		Boundaries: true,
	}
	if certainty != nil {
		el.User = &annotation.ElementUserFields{Certainty: certainty, Confidence: certainty, BBox: make([]float64, 4*len(certainty))}
	}
	a := &annotation.Annotation{ItemID: "img-1", Annotation: annotation.Body{Name: name, Elements: []annotation.Element{el}}}
	if err := store.SaveAnnotation(context.Background(), a); err != nil {
		t.Fatalf("SaveAnnotation: %v", err)
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "labelflow" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "labelflow")
	}

	// Compare by Name(), not Use which includes args
	expectedCmds := []string{"status", "rank", "train", "retrain", "wait", "watch", "categories", "label", "config", "logs"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestStatusCommand(t *testing.T) {
	setupLocalFolder(t)

	output, err := executeCommand(rootCmd, "status")
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, output)
	}
	for _, want := range []string{
		"Folder " + testFolder,
		"GuidedLabeling",
		"default, Tumor, Stroma",
		"Ranked superpixels",
		"0.533",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q:\n%s", want, output)
		}
	}
}

func TestStatusCommand_NoFolder(t *testing.T) {
	setupLocalFolder(t)
	viper.Set("folder.id", "")

	_, err := executeCommand(rootCmd, "status")
	if err == nil || !strings.Contains(err.Error(), "folder.id") {
		t.Errorf("status without folder: err = %v, want folder.id error", err)
	}
}

func TestRankCommand(t *testing.T) {
	setupLocalFolder(t)

	output, err := executeCommand(rootCmd, "rank", "--limit", "0", "--agreement", "")
	if err != nil {
		t.Fatalf("rank failed: %v\n%s", err, output)
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 4 {
		t.Fatalf("rank printed %d lines, want header and 3 records:\n%s", len(lines), output)
	}
	// Least certain first: index 1 (0.2), index 2 (0.5), index 0 (0.9)
	for i, want := range []string{"0.200", "0.500", "0.900"} {
		if !strings.Contains(lines[i+1], want) {
			t.Errorf("line %d = %q, want certainty %s", i+1, lines[i+1], want)
		}
	}

	output, err = executeCommand(rootCmd, "rank", "--limit", "0", "--agreement", "no")
	if err != nil {
		t.Fatalf("rank --agreement no failed: %v", err)
	}
	lines = strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "No") {
		t.Errorf("rank --agreement no:\n%s", output)
	}

	if _, err := executeCommand(rootCmd, "rank", "--agreement", "maybe"); err == nil {
		t.Error("rank --agreement maybe should fail")
	}
}

func TestLabelCommand(t *testing.T) {
	store := setupLocalFolder(t)

	output, err := executeCommand(rootCmd, "label", "img-1", "0", "Tumor")
	if err != nil {
		t.Fatalf("label failed: %v\n%s", err, output)
	}

	ctx := context.Background()
	summaries, err := store.ListAnnotations(ctx, "img-1")
	if err != nil {
		t.Fatal(err)
	}
	var labelsID string
	for _, s := range summaries {
		if s.Name == "Superpixel Epoch 1" {
			labelsID = s.ID
		}
	}
	a, err := store.Annotation(ctx, labelsID)
	if err != nil {
		t.Fatal(err)
	}
	el, err := a.Pixelmap()
	if err != nil {
		t.Fatal(err)
	}
	// Tumor is canonical index 1 once the labels are synchronized.
	if el.Values[0] != 1 || el.Categories[1].Label != "Tumor" {
		t.Errorf("labels after label = %v %v, want Tumor at index 0", el.Values, el.Categories)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"bad index", []string{"label", "img-1", "x", "Tumor"}},
		{"out of range", []string{"label", "img-1", "7", "Tumor"}},
		{"unknown category", []string{"label", "img-1", "0", "Fat"}},
		{"unknown image", []string{"label", "img-9", "0", "Tumor"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := executeCommand(rootCmd, tt.args...); err == nil {
				t.Errorf("%v should fail", tt.args)
			}
		})
	}
}

func TestCategoriesCommands(t *testing.T) {
	store := setupLocalFolder(t)

	output, err := executeCommand(rootCmd, "categories", "add", "Necrosis", "--fill", "rgba(0,0,255,0.5)", "--key", "n")
	if err != nil {
		t.Fatalf("categories add failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "index 3") {
		t.Errorf("categories add output = %q, want index 3", output)
	}

	doc, err := store.ReadConfig(context.Background(), testFolder)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, g := range doc.AnnotationGroups.Groups {
		if g.ID == "Necrosis" {
			found = true
			if g.HotKey != "n" || g.FillColor != "rgba(0,0,255,0.5)" {
				t.Errorf("Necrosis group = %+v", g)
			}
		}
	}
	if !found {
		t.Fatalf("Necrosis not written to configuration: %+v", doc.AnnotationGroups.Groups)
	}

	output, err = executeCommand(rootCmd, "categories")
	if err != nil {
		t.Fatalf("categories failed: %v", err)
	}
	for _, want := range []string{"Tumor", "Stroma", "Necrosis", "(default)"} {
		if !strings.Contains(output, want) {
			t.Errorf("categories output missing %q:\n%s", want, output)
		}
	}
}

func TestWatchCommand_RequiresLocalStore(t *testing.T) {
	setupLocalFolder(t)
	viper.Set("store.backend", "girder")
	viper.Set("girder.api_url", "http://127.0.0.1:1/api/v1")

	_, err := executeCommand(rootCmd, "watch")
	if err == nil || !strings.Contains(err.Error(), "local store") {
		t.Errorf("watch with girder backend: err = %v, want local store error", err)
	}
}

func TestParseSetting(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		want    any
		wantErr bool
	}{
		{"folder.id", "abc", "abc", false},
		{"job.poll_interval_ms", "500", 500, false},
		{"job.poll_interval_ms", "soon", nil, true},
		{"save.concurrency", "-1", nil, true},
		{"logging.compress", "true", true, false},
		{"logging.compress", "yes", nil, true},
		{"logging.level", "WARN", "warn", false},
		{"logging.level", "loud", nil, true},
		{"store.backend", "local", "local", false},
		{"store.backend", "s3", nil, true},
		{"unknown.key", "x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := parseSetting(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSetting() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseSetting() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigInit(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(viper.Reset)

	if _, err := executeCommand(rootCmd, "config", "init"); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	path := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "labelflow", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if !strings.Contains(string(data), "dsarchive/superpixel:latest#SuperpixelClassification") {
		t.Errorf("config file missing job type:\n%s", data)
	}

	if _, err := executeCommand(rootCmd, "config", "init"); err == nil {
		t.Error("second config init should fail")
	}
}

func TestLogsCommand(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(viper.Reset)

	dir := filepath.Join(t.TempDir(), "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	content := `{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"annotations loaded","folder_id":"folder-1"}
{"time":"2026-01-02T10:00:01Z","level":"WARN","msg":"job offers no certainty metric","folder_id":"folder-1"}
`
	if err := os.WriteFile(filepath.Join(dir, "labelflow.log"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	viper.Set("logging.dir", dir)

	output, err := executeCommand(rootCmd, "logs", "--level", "warn", "-n", "0", "--format", "text")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if !strings.Contains(output, "no certainty metric") || strings.Contains(output, "annotations loaded") {
		t.Errorf("logs --level warn output:\n%s", output)
	}
}

func TestPrintRanking(t *testing.T) {
	reg := category.NewRegistry(category.Category{Label: "default"})
	reg.Register(category.Category{Label: "Tumor"})
	records := []ranking.Record{
		{ImageID: "img-1", Index: 4, Certainty: 0.1, Prediction: 1, Selected: ranking.Unset, Agreement: ranking.AgreementUnset},
		{ImageID: "img-1", Index: 2, Certainty: 0.3, Prediction: 1, Selected: 1, Agreement: ranking.AgreementYes},
		{ImageID: "img-2", Index: 0, Certainty: 0.7, Prediction: 9, Selected: 0, Agreement: ranking.AgreementNo},
	}

	var buf bytes.Buffer
	printRanking(&buf, records, reg, 2)
	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 4 {
		t.Fatalf("printRanking printed %d lines, want 4:\n%s", len(lines), output)
	}
	if !strings.Contains(lines[1], "Tumor") || !strings.Contains(lines[1], "-") {
		t.Errorf("first record = %q", lines[1])
	}
	if !strings.Contains(lines[3], "1 more") {
		t.Errorf("last line = %q, want remaining count", lines[3])
	}

	buf.Reset()
	printRanking(&buf, records, reg, 0)
	if !strings.Contains(buf.String(), "#9") {
		t.Errorf("unknown prediction index should render as #9:\n%s", buf.String())
	}

	buf.Reset()
	printRanking(&buf, nil, reg, 0)
	if !strings.Contains(buf.String(), "No superpixels") {
		t.Errorf("empty ranking output = %q", buf.String())
	}
}

func TestPrintStatus_Segmentation(t *testing.T) {
	var buf bytes.Buffer
	st := stateAt(workflow.SuperpixelSegmentation)
	printStatus(&buf, testFolder, st, savequeue.Status{})
	output := buf.String()
	for _, want := range []string{"SuperpixelSegmentation", "none", "unavailable", "idle"} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q:\n%s", want, output)
		}
	}

	buf.Reset()
	st.CertaintyMetrics = []string{"confidence", "margin"}
	failed := &savequeue.FlushResult{Failed: map[string]error{"img-1": os.ErrPermission}}
	printStatus(&buf, testFolder, st, savequeue.Status{Flushes: 2, LastFlush: failed})
	output = buf.String()
	for _, want := range []string{"confidence, margin", "2 saves", "1 failed"} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q:\n%s", want, output)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"much-too-long", 5, "much…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRecordingStore(t *testing.T) {
	store, err := localstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	r := newRecordingStore(store)
	r.now = func() time.Time { return now }

	a := &annotation.Annotation{ID: "ann-1", ItemID: "img-1", Annotation: annotation.Body{Name: "Superpixel Epoch 0"}}
	if err := r.SaveAnnotation(context.Background(), a); err != nil {
		t.Fatalf("SaveAnnotation: %v", err)
	}
	if !r.savedRecently("ann-1") {
		t.Error("savedRecently(ann-1) = false right after saving")
	}
	if r.savedRecently("ann-2") {
		t.Error("savedRecently(ann-2) = true for an unsaved annotation")
	}

	now = now.Add(2 * selfWriteWindow)
	if r.savedRecently("ann-1") {
		t.Error("savedRecently(ann-1) = true after the window")
	}
}

func stateAt(stage workflow.Stage) learning.State {
	reg := category.NewRegistry(category.Category{Label: "default"})
	return learning.State{Registry: reg, Hotkeys: category.DefaultHotkeys(), Epoch: workflow.NoEpoch, Stage: stage}
}

func TestReport(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantHint string
	}{
		{
			name:     "transient",
			err:      errors.NewTransientError("list jobs", errors.New("connection refused")),
			wantHint: "running the command again",
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			wantHint: "labelflow logs",
		},
		{
			name: "validation",
			err:  errors.NewValidationError("training folder is required").WithField("folder.id"),
		},
		{
			name: "canceled",
			err:  errors.Wrap(errors.ErrCanceled, "watch of job job-1"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Report(&buf, tt.err)
			out := buf.String()
			if !strings.Contains(out, tt.err.Error()) {
				t.Errorf("Report() = %q, want it to contain %q", out, tt.err.Error())
			}
			lines := strings.Count(strings.TrimSpace(out), "\n") + 1
			if tt.wantHint == "" && lines != 1 {
				t.Errorf("Report() = %q, want no hint", out)
			}
			if tt.wantHint != "" && !strings.Contains(out, tt.wantHint) {
				t.Errorf("Report() = %q, want hint %q", out, tt.wantHint)
			}
		})
	}

	var buf bytes.Buffer
	Report(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("Report(nil) wrote %q", buf.String())
	}
}
