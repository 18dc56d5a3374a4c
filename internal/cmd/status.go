package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/labelflow/internal/learning"
	"github.com/Iron-Ham/labelflow/internal/savequeue"
	"github.com/Iron-Ham/labelflow/internal/workflow"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the workflow status of the training folder",
	Long: `Load the training folder and display its workflow step, annotations,
categories and last classification job.

If a classification job is still running, status waits for it to finish.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		st, err := a.refresh(ctx)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), a.session.FolderID(), st, a.session.SaveStatus())
		return nil
	})
}

func printStatus(w io.Writer, folderID string, st learning.State, save savequeue.Status) {
	fmt.Fprintln(w, titleStyle.Render("Folder "+folderID))

	epoch := "none"
	if st.Epoch != workflow.NoEpoch {
		epoch = fmt.Sprintf("%d", st.Epoch)
	}
	fmt.Fprintln(w, field("Step", st.Stage.String()))
	fmt.Fprintln(w, field("Epoch", epoch))
	fmt.Fprintln(w, field("Images", fmt.Sprintf("%d", len(st.Images))))
	if st.Annotations != nil {
		fmt.Fprintln(w, field("Annotations", fmt.Sprintf("%d", st.Annotations.Count())))
	}
	if st.Registry != nil {
		fmt.Fprintln(w, field("Categories", strings.Join(st.Registry.Labels(), ", ")))
	}

	lastJob := mutedStyle.Render("none")
	if st.LastJobID != "" {
		lastJob = st.LastJobID
	}
	fmt.Fprintln(w, field("Last job", lastJob))

	if st.HasCertainty {
		fmt.Fprintln(w, field("Average certainty", fmt.Sprintf("%.3f", st.AverageCertainty)))
	}
	switch st.Stage {
	case workflow.GuidedLabeling:
		fmt.Fprintln(w, field("Ranked superpixels", fmt.Sprintf("%d", len(st.Records))))
	case workflow.SuperpixelSegmentation:
		metrics := warningStyle.Render("unavailable")
		if len(st.CertaintyMetrics) > 0 {
			metrics = strings.Join(st.CertaintyMetrics, ", ")
		}
		fmt.Fprintln(w, field("Certainty metrics", metrics))
	}

	saves := fmt.Sprintf("%s, %d saves", save.State, save.Flushes)
	if save.LastFlush != nil && len(save.LastFlush.Failed) > 0 {
		saves += errorStyle.Render(fmt.Sprintf(" (%d failed in last batch)", len(save.LastFlush.Failed)))
	}
	fmt.Fprintln(w, field("Label saves", saves))
}
