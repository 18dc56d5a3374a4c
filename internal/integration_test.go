// Package internal contains integration tests that drive a labeling session
// against a fake data server, from superpixel segmentation through guided
// labeling.
package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/labelflow/internal/annotation"
	"github.com/Iron-Ham/labelflow/internal/category"
	"github.com/Iron-Ham/labelflow/internal/event"
	"github.com/Iron-Ham/labelflow/internal/girder"
	"github.com/Iron-Ham/labelflow/internal/job"
	"github.com/Iron-Ham/labelflow/internal/learning"
	"github.com/Iron-Ham/labelflow/internal/logging"
	"github.com/Iron-Ham/labelflow/internal/ranking"
	"github.com/Iron-Ham/labelflow/internal/workflow"
)

const (
	testToken    = "secret"
	testFolderID = "folder-1"
	testJobURL   = "superpixel_latest/SuperpixelClassification"
	testJobType  = "dsarchive/superpixel:latest#SuperpixelClassification"
	testSpecPath = "slicer_cli_web/xml/superpixel"
)

const testDescriptor = `<?xml version="1.0" encoding="UTF-8"?>
<executable>
  <title>Superpixel Classification</title>
  <parameters>
    <label>IO</label>
    <directory>
      <name>images</name>
      <label>Image Directory</label>
      <channel>input</channel>
      <index>0</index>
    </directory>
    <string-enumeration>
      <name>certainty</name>
      <longflag>certainty</longflag>
      <label>Certainty Metric</label>
      <default>confidence</default>
      <element>confidence</element>
      <element>margin</element>
    </string-enumeration>
  </parameters>
</executable>`

// fakeServer is a stateful stand-in for the data and job server. Finishing
// a job writes the annotations the classification run would produce.
type fakeServer struct {
	t *testing.T

	mu          sync.Mutex
	clock       time.Time
	seq         int
	items       []annotation.Item
	folders     []annotation.Folder
	annotations map[string]*annotation.Annotation
	jobs        map[string]*job.Job
	polls       map[string]int
	finish      map[string]func()
	config      []byte
	puts        []string
}

func newFakeServer(t *testing.T) (*fakeServer, *girder.Client) {
	t.Helper()
	f := &fakeServer{
		t:     t,
		clock: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		items: []annotation.Item{
			{ID: "img-1", Name: "slide-1.svs", FolderID: testFolderID, LargeImage: map[string]any{"fileId": "file-1"}},
			{ID: "notes", Name: "notes.txt", FolderID: testFolderID},
		},
		folders: []annotation.Folder{
			{ID: "f-annotations", Name: learning.AnnotationsFolder, ParentID: testFolderID},
			{ID: "f-features", Name: learning.FeaturesFolder, ParentID: testFolderID},
			{ID: "f-models", Name: learning.ModelsFolder, ParentID: testFolderID},
		},
		annotations: make(map[string]*annotation.Annotation),
		jobs:        make(map[string]*job.Job),
		polls:       make(map[string]int),
		finish:      make(map[string]func()),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/annotation", f.listAnnotations)
	mux.HandleFunc("GET /api/v1/annotation/{id}", f.getAnnotation)
	mux.HandleFunc("PUT /api/v1/annotation/{id}", f.putAnnotation)
	mux.HandleFunc("GET /api/v1/item", f.listItems)
	mux.HandleFunc("GET /api/v1/folder", f.listFolders)
	mux.HandleFunc("GET /api/v1/folder/{id}/yaml_config/{name}", f.getConfig)
	mux.HandleFunc("PUT /api/v1/folder/{id}/yaml_config/{name}", f.putConfig)
	mux.HandleFunc("GET /api/v1/job/all", f.listJobs)
	mux.HandleFunc("GET /api/v1/job/{id}", f.getJob)
	mux.HandleFunc("POST /api/v1/slicer_cli_web/{image}/{cli}/run", f.runJob)
	mux.HandleFunc("POST /api/v1/slicer_cli_web/{image}/{cli}/rerun", f.rerunJob)
	mux.HandleFunc("GET /api/v1/slicer_cli_web/docker_image", f.dockerImages)
	mux.HandleFunc("GET /api/v1/"+testSpecPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, testDescriptor)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(girder.TokenHeader) != testToken {
			writeError(w, http.StatusUnauthorized, "token required")
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := girder.NewClient(srv.URL+"/api/v1", girder.WithToken(testToken))
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return f, client
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message, "type": "rest"})
}

// tick advances the server clock. Callers hold f.mu.
func (f *fakeServer) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

// addAnnotation stores a pixelmap annotation. Callers hold f.mu.
func (f *fakeServer) addAnnotation(itemID, name string, labels []string, values []int, certainty []float64) {
	f.seq++
	cats := make([]annotation.ElementCategory, len(labels))
	for i, l := range labels {
		cats[i] = annotation.ElementCategory{Label: l, FillColor: "rgba(0,0,0,0)", StrokeColor: "rgba(0,0,0,1)"}
	}
	el := annotation.Element{
		ID:         fmt.Sprintf("el-%d", f.seq),
		Type:       annotation.ElementPixelmap,
		GirderID:   "superpixels-" + itemID,
		Values:     values,
		Categories: cats,
		Boundaries: true,
	}
	if certainty != nil {
		el.User = &annotation.ElementUserFields{Certainty: certainty, Confidence: certainty}
	}
	id := fmt.Sprintf("ann-%d", f.seq)
	f.annotations[id] = &annotation.Annotation{
		ID:         id,
		ItemID:     itemID,
		Created:    f.tick(),
		Annotation: annotation.Body{Name: name, Elements: []annotation.Element{el}},
	}
}

// latest returns the newest annotation of itemID named name. Callers hold f.mu.
func (f *fakeServer) latest(itemID, name string) *annotation.Annotation {
	var best *annotation.Annotation
	for _, a := range f.annotations {
		if a.ItemID == itemID && a.Annotation.Name == name && (best == nil || a.Created.After(best.Created)) {
			best = a
		}
	}
	return best
}

// addJob registers a job that succeeds after polls running polls and then
// runs done. Callers hold f.mu.
func (f *fakeServer) addJob(code, polls int, args []string, done func()) *job.Job {
	f.seq++
	j := &job.Job{
		ID:      fmt.Sprintf("job-%d", f.seq),
		Title:   "SuperpixelClassification",
		Type:    testJobType,
		Code:    code,
		Updated: f.tick(),
		Kwargs:  job.Kwargs{ContainerArgs: args},
	}
	f.jobs[j.ID] = j
	f.polls[j.ID] = polls
	f.finish[j.ID] = done
	return j
}

func (f *fakeServer) listAnnotations(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	itemID := r.URL.Query().Get("itemId")
	var out []annotation.Annotation
	for _, a := range f.annotations {
		if a.ItemID == itemID {
			out = append(out, annotation.Annotation{
				ID:         a.ID,
				ItemID:     a.ItemID,
				Created:    a.Created,
				Annotation: annotation.Body{Name: a.Annotation.Name},
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	writeJSON(w, out)
}

func (f *fakeServer) getAnnotation(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.annotations[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "annotation not found")
		return
	}
	writeJSON(w, a)
}

func (f *fakeServer) putAnnotation(w http.ResponseWriter, r *http.Request) {
	var body annotation.Body
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	a, ok := f.annotations[id]
	if !ok {
		writeError(w, http.StatusNotFound, "annotation not found")
		return
	}
	a.Annotation = body
	f.puts = append(f.puts, id)
	writeJSON(w, a)
}

func (f *fakeServer) listItems(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.URL.Query().Get("folderId") != testFolderID {
		writeJSON(w, []annotation.Item{})
		return
	}
	writeJSON(w, f.items)
}

func (f *fakeServer) listFolders(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.URL.Query().Get("parentId") != testFolderID {
		writeJSON(w, []annotation.Folder{})
		return
	}
	writeJSON(w, f.folders)
}

func (f *fakeServer) getConfig(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.config == nil {
		writeError(w, http.StatusNotFound, "no configuration")
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	_, _ = w.Write(f.config)
}

func (f *fakeServer) putConfig(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config = data
	writeJSON(w, map[string]bool{"ok": true})
}

func (f *fakeServer) listJobs(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]job.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Updated.After(out[j].Updated) })
	writeJSON(w, out)
}

func (f *fakeServer) getJob(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	j, ok := f.jobs[id]
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !job.StatusFromCode(j.Code).IsTerminal() {
		if f.polls[id] > 0 {
			f.polls[id]--
			j.Code = job.CodeRunning
		} else {
			j.Code = job.CodeSuccess
			if done := f.finish[id]; done != nil {
				done()
			}
		}
		j.Updated = f.tick()
	}
	writeJSON(w, j)
}

func (f *fakeServer) runJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keys := make([]string, 0, len(r.PostForm))
	for k := range r.PostForm {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var args []string
	for _, k := range keys {
		args = append(args, "--"+k, r.PostForm.Get(k))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.addJob(job.CodeQueued, 1, args, f.segment)
	writeJSON(w, j)
}

func (f *fakeServer) rerunJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, ok := f.jobs[r.PostForm.Get("jobId")]
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	j := f.addJob(job.CodeQueued, 2, prev.Kwargs.ContainerArgs, f.train)
	writeJSON(w, j)
}

func (f *fakeServer) dockerImages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, job.DockerImages{
		"dsarchive/superpixel": {
			"latest": {
				"SuperpixelClassification": {Type: "python", XMLSpec: testSpecPath},
			},
		},
	})
}

// segment writes the epoch 0 superpixels of every image. Callers hold f.mu.
func (f *fakeServer) segment() {
	for _, it := range f.items {
		if it.IsImage() {
			f.addAnnotation(it.ID, "Superpixel Epoch 0", []string{"default"}, []int{0, 0, 0}, nil)
		}
	}
}

// train carries the current labels into the next epoch and writes
// predictions for it. Callers hold f.mu.
func (f *fakeServer) train() {
	for _, it := range f.items {
		if !it.IsImage() {
			continue
		}
		labels := f.latest(it.ID, "Superpixel Epoch 0")
		if labels == nil {
			f.t.Errorf("train: no epoch 0 labels for %s", it.ID)
			continue
		}
		el := labels.Annotation.Elements[0]
		names := make([]string, len(el.Categories))
		for i, c := range el.Categories {
			names[i] = c.Label
		}
		f.addAnnotation(it.ID, "Superpixel Epoch 1", names, append([]int(nil), el.Values...), nil)
		f.addAnnotation(it.ID, "Superpixel Epoch 1 Predictions",
			[]string{"default", "Stroma", "Tumor"}, []int{1, 1, 2}, []float64{0.3, 0.6, 0.2})
	}
}

func (f *fakeServer) configText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.config)
}

func (f *fakeServer) stored(id string) annotation.Annotation {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.annotations[id]
	if !ok {
		f.t.Fatalf("annotation %s not stored", id)
	}
	return *a
}

// eventLog records the type of every published event.
type eventLog struct {
	mu    sync.Mutex
	types []string
}

func (l *eventLog) record(e event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, e.EventType())
}

func (l *eventLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.types {
		if t == eventType {
			n++
		}
	}
	return n
}

func newSession(t *testing.T, client *girder.Client, bus *event.Bus) *learning.Session {
	t.Helper()
	s, err := learning.New(context.Background(), learning.Stores{
		Annotations: client,
		Items:       client,
		Jobs:        client,
		Config:      client,
	}, learning.Options{
		FolderID:     testFolderID,
		JobURL:       testJobURL,
		JobType:      testJobType,
		PollInterval: 5 * time.Millisecond,
		Logger:       logging.NopLogger(),
		Bus:          bus,
	})
	if err != nil {
		t.Fatalf("learning.New() error: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return s
}

// TestGuidedLabelingWorkflow walks a folder from superpixel segmentation
// through initial labeling into guided labeling.
func TestGuidedLabelingWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server, client := newFakeServer(t)
	bus := event.NewBus(logging.NopLogger())
	events := &eventLog{}
	bus.SubscribeAll(events.record)
	s := newSession(t, client, bus)

	// A fresh folder offers the certainty metrics of the job
	st, err := s.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if st.Stage != workflow.SuperpixelSegmentation || st.Epoch != workflow.NoEpoch {
		t.Fatalf("initial stage = %v epoch %d, want SuperpixelSegmentation", st.Stage, st.Epoch)
	}
	if want := []string{"confidence", "margin"}; !slices.Equal(st.CertaintyMetrics, want) {
		t.Errorf("CertaintyMetrics = %v, want %v", st.CertaintyMetrics, want)
	}
	if len(st.Images) != 1 || st.Images[0].ID != "img-1" {
		t.Errorf("Images = %+v, want only img-1", st.Images)
	}

	// Segmentation
	h, err := s.GenerateInitialSuperpixels(ctx, st, 100, 5, st.CertaintyMetrics[0])
	if err != nil {
		t.Fatalf("GenerateInitialSuperpixels() error: %v", err)
	}
	if err := s.WaitJob(ctx); err != nil {
		t.Fatalf("WaitJob() error: %v", err)
	}
	st = s.Current()
	if st.Stage != workflow.InitialLabeling || st.Epoch != 0 {
		t.Fatalf("stage after segmentation = %v epoch %d, want InitialLabeling epoch 0", st.Stage, st.Epoch)
	}
	if st.LastJobID != h.JobID {
		t.Errorf("LastJobID = %q, want %q", st.LastJobID, h.JobID)
	}

	server.mu.Lock()
	args := server.jobs[h.JobID].Kwargs.ContainerArgs
	server.mu.Unlock()
	for _, want := range []string{testFolderID, "f-annotations", "f-features", "f-models", "confidence"} {
		if !slices.Contains(args, want) {
			t.Errorf("container args %v missing %q", args, want)
		}
	}

	// Initial labeling
	if st, err = s.AddCategory(st, category.Category{Label: "Tumor", FillColor: "rgba(255,0,0,0.5)"}, "t"); err != nil {
		t.Fatalf("AddCategory() error: %v", err)
	}
	if st, err = s.SaveCategories(ctx, st); err != nil {
		t.Fatalf("SaveCategories() error: %v", err)
	}
	if st, err = s.AssignLabel(st, "img-1", 2, "Tumor"); err != nil {
		t.Fatalf("AssignLabel() error: %v", err)
	}
	s.Commit(st)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	server.mu.Lock()
	puts := len(server.puts)
	server.mu.Unlock()
	if puts == 0 {
		t.Error("no labels were saved")
	}
	if cfg := server.configText(); !strings.Contains(cfg, "Tumor") {
		t.Errorf("folder configuration missing Tumor:\n%s", cfg)
	}

	pair, ok := st.Annotations.Get("img-1")
	if !ok || pair.Labels == nil {
		t.Fatal("img-1 has no labels")
	}
	saved := server.stored(pair.Labels.ID)
	el := saved.Annotation.Elements[0]
	if v := el.Values[2]; v >= len(el.Categories) || el.Categories[v].Label != "Tumor" {
		t.Errorf("saved labels = %v %+v, want superpixel 2 labeled Tumor", el.Values, el.Categories)
	}

	// Guided labeling
	if _, err := s.Retrain(ctx, st, true); err != nil {
		t.Fatalf("Retrain() error: %v", err)
	}
	if err := s.WaitJob(ctx); err != nil {
		t.Fatalf("WaitJob() error: %v", err)
	}
	st = s.Current()
	if st.Stage != workflow.GuidedLabeling || st.Epoch != 1 {
		t.Fatalf("stage after retrain = %v epoch %d, want GuidedLabeling epoch 1", st.Stage, st.Epoch)
	}
	if got := st.Registry.Labels(); !slices.Equal(got, []string{"default", "Tumor", "Stroma"}) {
		t.Errorf("Labels() = %v, want [default Tumor Stroma]", got)
	}
	if k, ok := st.Hotkeys.KeyFor(1); !ok || k != "t" {
		t.Errorf("hotkey of Tumor = %q %v, want t", k, ok)
	}

	if len(st.Records) != 3 {
		t.Fatalf("Records = %d, want 3", len(st.Records))
	}
	wantOrder := []int{2, 0, 1}
	for i, r := range st.Records {
		if r.Index != wantOrder[i] {
			t.Errorf("Records[%d].Index = %d, want %d", i, r.Index, wantOrder[i])
		}
	}
	if a := st.Records[0].Agreement; a != ranking.AgreementYes {
		t.Errorf("Records[0].Agreement = %q, want %q", a, ranking.AgreementYes)
	}
	if a := st.Records[1].Agreement; a != ranking.AgreementUnset {
		t.Errorf("Records[1].Agreement = %q, want unset", a)
	}
	if !st.HasCertainty || math.Abs(st.AverageCertainty-1.1/3) > 1e-9 {
		t.Errorf("AverageCertainty = %v %v, want %v", st.AverageCertainty, st.HasCertainty, 1.1/3)
	}

	checks := map[string]int{
		event.TypeJobStarted:       2,
		event.TypeJobSucceeded:     2,
		event.TypeStageChanged:     2,
		event.TypeRankingUpdated:   1,
		event.TypeCategoriesSynced: 2,
	}
	for typ, want := range checks {
		if n := events.count(typ); n < want {
			t.Errorf("%s events = %d, want at least %d", typ, n, want)
		}
	}
	if n := events.count(event.TypeCertaintyUnavailable); n != 0 {
		t.Errorf("%s events = %d, want 0", event.TypeCertaintyUnavailable, n)
	}
}

// TestWorkflow_WaitsForRunningJob checks that opening a folder whose job is
// still running waits for it before loading.
func TestWorkflow_WaitsForRunningJob(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server, client := newFakeServer(t)
	server.mu.Lock()
	running := server.addJob(job.CodeRunning, 2, []string{"--images", testFolderID}, server.segment)
	server.addJob(job.CodeSuccess, 0, []string{"--images", "other-folder"}, nil)
	server.mu.Unlock()

	s := newSession(t, client, event.NewBus(logging.NopLogger()))
	st, err := s.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if st.LastJobID != running.ID {
		t.Errorf("LastJobID = %q, want %q", st.LastJobID, running.ID)
	}
	if st.Stage != workflow.InitialLabeling {
		t.Errorf("Stage = %v, want InitialLabeling", st.Stage)
	}
	if st.Annotations.Count() != 1 {
		t.Errorf("annotations = %d, want 1", st.Annotations.Count())
	}
}

// TestWorkflow_RejectsBadToken checks that an authentication failure
// surfaces from Refresh.
func TestWorkflow_RejectsBadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "token required")
	}))
	defer srv.Close()
	client, err := girder.NewClient(srv.URL+"/api/v1", girder.WithToken("wrong"))
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	s := newSession(t, client, nil)
	if _, err := s.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() with a rejected token should fail")
	}
}
