package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/labelflow/internal/category"
	"github.com/Iron-Ham/labelflow/internal/ranking"
	"github.com/Iron-Ham/labelflow/internal/workflow"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "List superpixels by ascending model certainty",
	Long: `List the superpixel predictions of the training folder, least certain
first, with the label selected for each superpixel and whether it agrees with
the prediction.

Ranking is available once the folder has reached guided labeling.

Examples:
  # The 20 least certain superpixels
  labelflow rank

  # Every superpixel whose label disagrees with the prediction
  labelflow rank --agreement no --limit 0`,
	Args: cobra.NoArgs,
	RunE: runRank,
}

var (
	rankLimit     int
	rankAgreement string
)

func init() {
	rootCmd.AddCommand(rankCmd)

	rankCmd.Flags().IntVarP(&rankLimit, "limit", "n", 20, "Number of superpixels to show (0 for all)")
	rankCmd.Flags().StringVar(&rankAgreement, "agreement", "", "Only show superpixels whose agreement is yes, no or unset")
}

func runRank(cmd *cobra.Command, args []string) error {
	var filter *ranking.Agreement
	if rankAgreement != "" {
		a, ok := ranking.ParseAgreement(rankAgreement)
		if !ok {
			return fmt.Errorf("invalid agreement %q: expected yes, no or unset", rankAgreement)
		}
		filter = &a
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		st, err := a.refresh(ctx)
		if err != nil {
			return err
		}
		if st.Stage != workflow.GuidedLabeling {
			fmt.Fprintf(cmd.OutOrStdout(), "No ranking yet: the folder is at %s.\n", st.Stage)
			return nil
		}

		records := st.Records
		if filter != nil {
			records = ranking.Filter(records, *filter)
		}
		printRanking(cmd.OutOrStdout(), records, st.Registry, rankLimit)
		return nil
	})
}

func printRanking(w io.Writer, records []ranking.Record, reg *category.Registry, limit int) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No superpixels to review.")
		return
	}
	shown := records
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%-5s %-24s %6s %9s %10s  %-16s %-16s %s",
		"#", "IMAGE", "INDEX", "CERTAINTY", "CONFIDENCE", "PREDICTION", "LABEL", "AGREE")))
	for i, r := range shown {
		line := fmt.Sprintf("%-5d %-24s %6d %9.3f %10.3f  %-16s %-16s ",
			i+1, truncate(r.ImageID, 24), r.Index, r.Certainty, r.Confidence,
			labelAt(reg, r.Prediction), labelAt(reg, r.Selected))
		fmt.Fprintln(w, line+agreementStyle(r.Agreement).Render(r.Agreement.String()))
	}
	if len(shown) < len(records) {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("... %d more", len(records)-len(shown))))
	}
}

func labelAt(reg *category.Registry, index int) string {
	if index == ranking.Unset {
		return "-"
	}
	if reg != nil {
		if c, ok := reg.At(index); ok {
			return truncate(c.Label, 16)
		}
	}
	return fmt.Sprintf("#%d", index)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
