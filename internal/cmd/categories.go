package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/labelflow/internal/category"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the categories of the training folder",
	Long: `List the canonical categories of the training folder in index order,
with their colors and hotkeys. Categories found in annotations are included.

Use subcommands to add categories.`,
	Args: cobra.NoArgs,
	RunE: runCategoriesList,
}

var categoriesAddCmd = &cobra.Command{
	Use:   "add <label>",
	Short: "Add a category and save the folder configuration",
	Long: `Add a category to the training folder and write the categories back to
the folder configuration. Adding an existing label only changes its hotkey.

Examples:
  labelflow categories add Tumor --fill "rgba(255,0,0,0.5)" --key t`,
	Args: cobra.ExactArgs(1),
	RunE: runCategoriesAdd,
}

var labelCmd = &cobra.Command{
	Use:   "label <image-id> <index> <category>",
	Short: "Label one superpixel",
	Long: `Set the category of superpixel <index> in the labels of an image and
save them. The category must already be registered.`,
	Args: cobra.ExactArgs(3),
	RunE: runLabel,
}

var (
	categoryFill   string
	categoryStroke string
	categoryKey    string
)

func init() {
	rootCmd.AddCommand(categoriesCmd)
	categoriesCmd.AddCommand(categoriesAddCmd)
	rootCmd.AddCommand(labelCmd)

	categoriesAddCmd.Flags().StringVar(&categoryFill, "fill", "", "Fill color, e.g. rgba(255,0,0,0.5)")
	categoriesAddCmd.Flags().StringVar(&categoryStroke, "stroke", "", "Line color (default: rgba(0,0,0,1))")
	categoriesAddCmd.Flags().StringVar(&categoryKey, "key", "", "Hotkey bound to the category")
}

func runCategoriesList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		st, err := a.refresh(ctx)
		if err != nil {
			return err
		}
		printCategories(cmd.OutOrStdout(), st.Registry, st.Hotkeys)
		return nil
	})
}

func printCategories(w io.Writer, reg *category.Registry, hotkeys *category.Hotkeys) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%-5s %-3s %-24s %-22s %s", "INDEX", "KEY", "LABEL", "FILL", "STROKE")))
	for i, c := range reg.Categories() {
		key := "-"
		if hotkeys != nil {
			if k, ok := hotkeys.KeyFor(i); ok {
				key = k
			}
		}
		label := c.Label
		if i == 0 {
			label += mutedStyle.Render(" (default)")
		}
		fmt.Fprintf(w, "%-5d %s %-24s %-22s %s\n", i, keyStyle.Render(key), label, orDash(c.FillColor), orDash(c.StrokeColor))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runCategoriesAdd(cmd *cobra.Command, args []string) error {
	c := category.Category{Label: args[0], FillColor: categoryFill, StrokeColor: categoryStroke}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		st, err := a.refresh(ctx)
		if err != nil {
			return err
		}
		if st, err = a.session.AddCategory(st, c, categoryKey); err != nil {
			return err
		}
		if st, err = a.session.SaveCategories(ctx, st); err != nil {
			return err
		}
		a.session.Commit(st)

		idx, _ := st.Registry.IndexOf(c.Label)
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Category %q saved at index %d", c.Label, idx)))
		return nil
	})
}

func runLabel(cmd *cobra.Command, args []string) error {
	imageID, label := args[0], args[2]
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid superpixel index %q: expected integer", args[1])
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		st, err := a.refresh(ctx)
		if err != nil {
			return err
		}
		if st, err = a.session.AssignLabel(st, imageID, index, label); err != nil {
			return err
		}
		a.session.Commit(st)
		if err := a.session.Flush(ctx); err != nil {
			return err
		}
		if last := a.session.SaveStatus().LastFlush; last != nil {
			if err := last.Err(); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Superpixel %d of %s labeled %s", index, imageID, label)))
		return nil
	})
}
