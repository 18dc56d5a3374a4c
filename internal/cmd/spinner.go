package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/event"
	"github.com/Iron-Ham/labelflow/internal/job"
)

// jobDoneMsg carries the result of waiting on a job.
type jobDoneMsg struct {
	err error
}

// waitModel shows a spinner with the live status of a watched job until the
// wait function returns.
type waitModel struct {
	ctx     context.Context
	spinner spinner.Model
	handle  *job.Handle
	wait    func(context.Context) error
	title   string
	err     error
	done    bool
}

func newWaitModel(ctx context.Context, h *job.Handle, title string, wait func(context.Context) error) waitModel {
	return waitModel{
		ctx:     ctx,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(titleStyle)),
		handle:  h,
		wait:    wait,
		title:   title,
	}
}

func (m waitModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return jobDoneMsg{err: m.wait(m.ctx)}
	})
}

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.handle.Cancel()
			m.err = errors.Wrapf(errors.ErrCanceled, "watch of job %s", m.handle.JobID)
			m.done = true
			return m, tea.Quit
		}
	case jobDoneMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m waitModel) View() string {
	if m.done {
		return ""
	}
	status := m.handle.Status()
	return fmt.Sprintf("%s %s %s %s\n",
		m.spinner.View(),
		m.title,
		jobStatusStyle(status).Render(status.String()),
		mutedStyle.Render(fmt.Sprintf("(%d polls, q to stop)", m.handle.Polls())),
	)
}

// waitForJob runs wait while showing the progress of h. On a terminal the
// progress is a spinner; otherwise every status change is printed as a line.
func waitForJob(ctx context.Context, w io.Writer, bus *event.Bus, h *job.Handle, wait func(context.Context) error) error {
	title := "Job " + h.JobID
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		final, err := tea.NewProgram(newWaitModel(ctx, h, title, wait), tea.WithOutput(f)).Run()
		if err != nil {
			return err
		}
		if m, ok := final.(waitModel); ok && m.err != nil {
			return m.err
		}
		fmt.Fprintln(w, successStyle.Render(title+" succeeded"))
		return nil
	}

	fmt.Fprintf(w, "%s %s\n", title, h.Status())
	id := bus.Subscribe(event.TypeJobStatusChanged, func(e event.Event) {
		if ev, ok := e.(event.JobStatusChangedEvent); ok && ev.JobID == h.JobID {
			fmt.Fprintf(w, "%s %s -> %s\n", title, ev.OldStatus, ev.NewStatus)
		}
	})
	defer bus.Unsubscribe(id)

	if err := wait(ctx); err != nil {
		return err
	}
	fmt.Fprintln(w, title+" succeeded")
	return nil
}
