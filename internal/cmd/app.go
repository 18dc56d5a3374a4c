package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/labelflow/internal/config"
	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/event"
	"github.com/Iron-Ham/labelflow/internal/girder"
	"github.com/Iron-Ham/labelflow/internal/learning"
	"github.com/Iron-Ham/labelflow/internal/localstore"
	"github.com/Iron-Ham/labelflow/internal/logging"
)

// app is one opened training folder: the session with the stores, logger and
// event bus behind it.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *event.Bus
	stores   learning.Stores
	recorder *recordingStore
	local    *localstore.Store // nil unless store.backend is "local"
	session  *learning.Session
}

// commandContext is the command's context, canceled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// withApp opens the training folder for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	err = fn(ctx, a)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	return err
}

// openApp loads the configuration and opens a session on folder.id.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Folder.ID == "" {
		return nil, errors.NewValidationError("no training folder: set folder.id or pass --folder").WithField("folder.id")
	}

	logger, err := logging.NewRotatingLogger(cfg.Logging.ResolveDir(), cfg.Logging.Level, cfg.Logging.Rotation())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, bus: event.NewBus(logger)}
	a.stores, err = a.openStores()
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	a.session, err = learning.New(ctx, a.stores, learning.Options{
		FolderID:           cfg.Folder.ID,
		JobURL:             cfg.Job.URL,
		JobType:            cfg.Job.Type,
		PollInterval:       cfg.Job.PollInterval(),
		ValidPattern:       cfg.Annotations.ValidPattern,
		PredictionsPattern: cfg.Annotations.PredictionsPattern,
		SaveConcurrency:    cfg.Save.Concurrency,
		Logger:             logger,
		Bus:                a.bus,
	})
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStores() (learning.Stores, error) {
	switch a.cfg.Store.Backend {
	case config.BackendLocal:
		s, err := localstore.Open(a.cfg.Store.ResolveLocalDir(), localstore.WithJobType(a.cfg.Job.Type))
		if err != nil {
			return learning.Stores{}, err
		}
		a.local = s
		a.recorder = newRecordingStore(s)
		return learning.Stores{Annotations: a.recorder, Items: s, Jobs: s, Config: s}, nil
	default:
		c, err := girder.NewClient(a.cfg.Girder.APIURL,
			girder.WithToken(a.cfg.Girder.Token),
			girder.WithTimeout(a.cfg.Girder.Timeout()),
			girder.WithLogger(a.logger),
		)
		if err != nil {
			return learning.Stores{}, err
		}
		a.recorder = newRecordingStore(c)
		return learning.Stores{Annotations: a.recorder, Items: c, Jobs: c, Config: c}, nil
	}
}

// refresh opens the folder and waits for pending label saves.
func (a *app) refresh(ctx context.Context) (learning.State, error) {
	st, err := a.session.Refresh(ctx)
	if err != nil {
		return st, err
	}
	return st, a.session.Flush(ctx)
}

// Close stops the session and closes the log file.
func (a *app) Close() error {
	err := a.session.Close()
	if cerr := a.logger.Close(); err == nil {
		err = cerr
	}
	return err
}
