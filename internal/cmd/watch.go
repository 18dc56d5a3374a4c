package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/labelflow/internal/annotation"
	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/event"
)

// selfWriteWindow is how long after saving an annotation its change
// notifications are attributed to this process.
const selfWriteWindow = time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reload the folder whenever its annotations change",
	Long: `Watch the annotation files of a local store and reload the training
folder each time another process writes one, printing the new status.

Only the local store backend can be watched.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// recordingStore notes the annotations it saves so that the resulting file
// changes are not mistaken for outside edits.
type recordingStore struct {
	annotation.Store

	mu    sync.Mutex
	saved map[string]time.Time
	now   func() time.Time
}

func newRecordingStore(s annotation.Store) *recordingStore {
	return &recordingStore{Store: s, saved: make(map[string]time.Time), now: time.Now}
}

func (r *recordingStore) SaveAnnotation(ctx context.Context, a *annotation.Annotation) error {
	if err := r.Store.SaveAnnotation(ctx, a); err != nil {
		return err
	}
	r.mu.Lock()
	r.saved[a.ID] = r.now()
	r.mu.Unlock()
	return nil
}

// savedRecently reports whether id was saved within selfWriteWindow.
func (r *recordingStore) savedRecently(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.saved[id]
	if !ok {
		return false
	}
	if r.now().Sub(at) > selfWriteWindow {
		delete(r.saved, id)
		return false
	}
	return true
}

func runWatch(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if a.local == nil {
			return errors.NewValidationError("watch needs the local store backend").
				WithField("store.backend").WithValue(a.cfg.Store.Backend)
		}
		out := cmd.OutOrStdout()

		st, err := a.refresh(ctx)
		if err != nil {
			return err
		}
		printStatus(out, a.session.FolderID(), st, a.session.SaveStatus())

		changed := make(chan string, 1)
		id := a.bus.Subscribe(event.TypeAnnotationsChanged, func(e event.Event) {
			ev, ok := e.(event.AnnotationsChangedEvent)
			if !ok || a.recorder.savedRecently(strings.TrimSuffix(filepath.Base(ev.Path), ".json")) {
				return
			}
			select {
			case changed <- ev.Path:
			default:
			}
		})
		defer a.bus.Unsubscribe(id)

		watchErr := make(chan error, 1)
		go func() { watchErr <- a.local.Watch(ctx, a.bus, a.logger) }()

		fmt.Fprintln(out, mutedStyle.Render("Watching for annotation changes (Ctrl+C to stop)..."))
		for {
			select {
			case <-ctx.Done():
				return <-watchErr
			case err := <-watchErr:
				return err
			case path := <-changed:
				fmt.Fprintf(out, "\n%s\n", mutedStyle.Render("Changed: "+filepath.Base(path)))
				st, err := a.refresh(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return <-watchErr
					}
					fmt.Fprintln(out, errorStyle.Render("Reload failed: "+err.Error()))
					continue
				}
				printStatus(out, a.session.FolderID(), st, a.session.SaveStatus())
			}
		}
	})
}
