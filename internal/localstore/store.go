// Package localstore keeps annotations, items, jobs and folder configuration
// documents in a directory tree, so the workflow can run without a server.
//
// Layout under the root directory:
//
//	folders/<id>.json       child folder records
//	items/<id>.json         item records
//	annotations/<id>.json   annotation records with elements
//	jobs/<id>.json          job records
//	config/<folder>.yaml    folder configuration documents
//	docker_images.json      CLI image catalog
//
// Records are JSON and written atomically. Descriptor references are paths
// relative to the root.
package localstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/labelflow/internal/annotation"
	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/groupconfig"
	"github.com/Iron-Ham/labelflow/internal/job"
)

// Directory names under the root.
const (
	FoldersDir     = "folders"
	ItemsDir       = "items"
	AnnotationsDir = "annotations"
	JobsDir        = "jobs"
	ConfigDir      = "config"
	ImagesFile     = "docker_images.json"
)

var (
	_ annotation.Store     = (*Store)(nil)
	_ annotation.ItemStore = (*Store)(nil)
	_ job.Store            = (*Store)(nil)
	_ groupconfig.Store    = (*Store)(nil)
)

// Store is a directory-backed store. It is safe for concurrent use within a
// process; writes also take a file lock for other processes.
type Store struct {
	root    string
	jobType string
	now     func() time.Time

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithJobType sets the type recorded on jobs started through Run.
func WithJobType(jobType string) Option {
	return func(s *Store) {
		s.jobType = jobType
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open returns a store rooted at dir, creating the layout if needed.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{root: dir, jobType: job.DefaultType, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	for _, sub := range []string{FoldersDir, ItemsDir, AnnotationsDir, JobsDir, ConfigDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return s, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) path(kind, id, ext string) (string, error) {
	if id == "" || !filepath.IsLocal(id) || strings.ContainsRune(id, filepath.Separator) {
		return "", errors.NewValidationError("invalid record id").WithField(kind).WithValue(id)
	}
	return filepath.Join(s.root, kind, id+ext), nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeFile replaces path atomically under the store lock.
func (s *Store) writeFile(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fl := newFileLock(s.root)
	if err := fl.lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.unlock() }()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return s.writeFile(path, data)
}

// readAll decodes every record of kind. Temp files are ignored.
func readAll[T any](s *Store, kind string) ([]T, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	var out []T
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var v T
		if err := readJSON(filepath.Join(s.root, kind, e.Name()), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) get(kind, id string, out any) error {
	path, err := s.path(kind, id, ".json")
	if err != nil {
		return err
	}
	if err := readJSON(path, out); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError(strings.TrimSuffix(kind, "s"), id)
		}
		return err
	}
	return nil
}

// ListAnnotations returns the summaries of itemID, newest first.
func (s *Store) ListAnnotations(_ context.Context, itemID string) ([]annotation.Summary, error) {
	all, err := readAll[annotation.Annotation](s, AnnotationsDir)
	if err != nil {
		return nil, err
	}
	var out []annotation.Summary
	for _, a := range all {
		if a.ItemID != itemID {
			continue
		}
		out = append(out, annotation.Summary{ID: a.ID, ItemID: a.ItemID, Created: a.Created, Name: a.Annotation.Name})
	}
	slices.SortStableFunc(out, func(a, b annotation.Summary) int {
		if c := b.Created.Compare(a.Created); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Annotation reads one annotation.
func (s *Store) Annotation(_ context.Context, id string) (*annotation.Annotation, error) {
	var a annotation.Annotation
	if err := s.get(AnnotationsDir, id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAnnotation writes a. An annotation without an id is created with a new
// one; Created is stamped on first write.
func (s *Store) SaveAnnotation(_ context.Context, a *annotation.Annotation) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Created.IsZero() {
		a.Created = s.now().UTC()
	}
	path, err := s.path(AnnotationsDir, a.ID, ".json")
	if err != nil {
		return err
	}
	return s.writeJSON(path, a)
}

// ListItems returns the items of folderID ordered by name.
func (s *Store) ListItems(_ context.Context, folderID string) ([]annotation.Item, error) {
	all, err := readAll[annotation.Item](s, ItemsDir)
	if err != nil {
		return nil, err
	}
	items := slices.DeleteFunc(all, func(it annotation.Item) bool { return it.FolderID != folderID })
	slices.SortFunc(items, func(a, b annotation.Item) int { return cmp.Compare(a.Name, b.Name) })
	return items, nil
}

// PutItem writes an item record.
func (s *Store) PutItem(it annotation.Item) error {
	path, err := s.path(ItemsDir, it.ID, ".json")
	if err != nil {
		return err
	}
	return s.writeJSON(path, it)
}

// ListFolders returns the child folders of parentID ordered by name.
func (s *Store) ListFolders(_ context.Context, parentID string) ([]annotation.Folder, error) {
	all, err := readAll[annotation.Folder](s, FoldersDir)
	if err != nil {
		return nil, err
	}
	folders := slices.DeleteFunc(all, func(f annotation.Folder) bool { return f.ParentID != parentID })
	slices.SortFunc(folders, func(a, b annotation.Folder) int { return cmp.Compare(a.Name, b.Name) })
	return folders, nil
}

// PutFolder writes a folder record.
func (s *Store) PutFolder(f annotation.Folder) error {
	path, err := s.path(FoldersDir, f.ID, ".json")
	if err != nil {
		return err
	}
	return s.writeJSON(path, f)
}

// ListJobs returns the jobs of jobType ordered by update time.
func (s *Store) ListJobs(_ context.Context, jobType string) ([]job.Job, error) {
	all, err := readAll[job.Job](s, JobsDir)
	if err != nil {
		return nil, err
	}
	jobs := slices.DeleteFunc(all, func(j job.Job) bool { return j.Type != jobType })
	slices.SortStableFunc(jobs, func(a, b job.Job) int { return a.Updated.Compare(b.Updated) })
	return jobs, nil
}

// Job reads one job.
func (s *Store) Job(_ context.Context, id string) (job.Job, error) {
	var j job.Job
	if err := s.get(JobsDir, id, &j); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

// PutJob writes a job record.
func (s *Store) PutJob(j job.Job) error {
	path, err := s.path(JobsDir, j.ID, ".json")
	if err != nil {
		return err
	}
	return s.writeJSON(path, j)
}

// SetJobStatus records a new status code on a job, as an external runner does.
func (s *Store) SetJobStatus(ctx context.Context, id string, code int) (job.Job, error) {
	j, err := s.Job(ctx, id)
	if err != nil {
		return job.Job{}, err
	}
	j.Code = code
	j.Updated = s.now().UTC()
	return j, s.PutJob(j)
}

// Run records a queued job. Parameters become the container arguments in
// key order, as --key value pairs.
func (s *Store) Run(_ context.Context, jobURL string, params map[string]string) (job.Job, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	args := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, "--"+k, params[k])
	}

	j := job.Job{
		ID:      uuid.NewString(),
		Title:   jobURL,
		Type:    s.jobType,
		Code:    job.CodeQueued,
		Updated: s.now().UTC(),
		Kwargs:  job.Kwargs{ContainerArgs: args},
	}
	return j, s.PutJob(j)
}

// Rerun records a queued copy of jobID.
func (s *Store) Rerun(ctx context.Context, jobURL, jobID string) (job.Job, error) {
	prev, err := s.Job(ctx, jobID)
	if err != nil {
		return job.Job{}, err
	}
	j := job.Job{
		ID:      uuid.NewString(),
		Title:   jobURL,
		Type:    prev.Type,
		Code:    job.CodeQueued,
		Updated: s.now().UTC(),
		Kwargs:  job.Kwargs{ContainerArgs: slices.Clone(prev.Kwargs.ContainerArgs)},
	}
	return j, s.PutJob(j)
}

// DockerImages reads the image catalog. A missing catalog is empty.
func (s *Store) DockerImages(_ context.Context) (job.DockerImages, error) {
	images := job.DockerImages{}
	if err := readJSON(filepath.Join(s.root, ImagesFile), &images); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return images, nil
}

// Descriptor reads a descriptor file at a path relative to the root.
func (s *Store) Descriptor(_ context.Context, ref string) ([]byte, error) {
	rel := filepath.FromSlash(ref)
	if !filepath.IsLocal(rel) {
		return nil, errors.NewValidationError("descriptor must be inside the store").WithValue(ref)
	}
	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("descriptor", ref)
	}
	return data, err
}

// ReadConfig returns the folder's configuration document, or an empty one.
func (s *Store) ReadConfig(_ context.Context, folderID string) (*groupconfig.Document, error) {
	path, err := s.path(ConfigDir, folderID, ".yaml")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &groupconfig.Document{}, nil
	}
	if err != nil {
		return nil, err
	}
	return groupconfig.Decode(data)
}

// WriteConfig replaces the folder's configuration document.
func (s *Store) WriteConfig(_ context.Context, folderID string, doc *groupconfig.Document) error {
	path, err := s.path(ConfigDir, folderID, ".yaml")
	if err != nil {
		return err
	}
	data, err := groupconfig.Encode(doc)
	if err != nil {
		return err
	}
	return s.writeFile(path, data)
}
