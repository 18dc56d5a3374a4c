package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/labelflow/internal/job"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Generate the initial superpixels and predictions",
	Long: `Launch the first superpixel classification run over the training folder
and wait for it. The folder must contain Annotations, Features and Models
child folders.

When --certainty is not given, the first certainty metric offered by the
classification job is used.`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Rerun the last classification job with the saved labels",
	Long: `Rerun the last classification job of the training folder with its
original inputs, wait for it and reload the folder.

With --next the folder's jobs are checked again after the run, moving the
workflow to its next step.`,
	Args: cobra.NoArgs,
	RunE: runRetrain,
}

var waitCmd = &cobra.Command{
	Use:   "wait <job-id>",
	Short: "Wait for a job to succeed",
	Args:  cobra.ExactArgs(1),
	RunE:  runWait,
}

var (
	trainRadius        int
	trainMagnification float64
	trainCertainty     string
	retrainNext        bool
)

func init() {
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(retrainCmd)
	rootCmd.AddCommand(waitCmd)

	trainCmd.Flags().IntVar(&trainRadius, "radius", 100, "Approximate superpixel radius in pixels")
	trainCmd.Flags().Float64Var(&trainMagnification, "magnification", 5, "Magnification at which superpixels are computed")
	trainCmd.Flags().StringVar(&trainCertainty, "certainty", "", "Certainty metric (default: first metric offered by the job)")

	retrainCmd.Flags().BoolVar(&retrainNext, "next", false, "Check jobs again after the run to advance the workflow step")
}

func runTrain(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		st, err := a.refresh(ctx)
		if err != nil {
			return err
		}
		metric := trainCertainty
		if metric == "" && len(st.CertaintyMetrics) > 0 {
			metric = st.CertaintyMetrics[0]
		}

		h, err := a.session.GenerateInitialSuperpixels(ctx, st, trainRadius, trainMagnification, metric)
		if err != nil {
			return err
		}
		return a.waitAndReport(ctx, cmd, h)
	})
}

func runRetrain(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		st, err := a.refresh(ctx)
		if err != nil {
			return err
		}
		h, err := a.session.Retrain(ctx, st, retrainNext)
		if err != nil {
			return err
		}
		return a.waitAndReport(ctx, cmd, h)
	})
}

// waitAndReport waits for the session's job and the reload after it, then
// prints the resulting status.
func (a *app) waitAndReport(ctx context.Context, cmd *cobra.Command, h *job.Handle) error {
	out := cmd.OutOrStdout()
	if err := waitForJob(ctx, out, a.bus, h, a.session.WaitJob); err != nil {
		return err
	}
	if err := a.session.Flush(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out)
	printStatus(out, a.session.FolderID(), a.session.Current(), a.session.SaveStatus())
	return nil
}

func runWait(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	return withApp(cmd, func(ctx context.Context, a *app) error {
		j, err := a.stores.Jobs.Job(ctx, jobID)
		if err != nil {
			return err
		}
		poller := job.NewPoller(a.stores.Jobs, job.PollerOptions{
			Interval: a.cfg.Job.PollInterval(),
			Logger:   a.logger,
			Bus:      a.bus,
		})
		h := poller.Watch(ctx, jobID, j.Status(), nil)
		defer h.Cancel()
		return waitForJob(ctx, cmd.OutOrStdout(), a.bus, h, h.Wait)
	})
}
