package commands

import (
	"fmt"
	"os"

	"github.com/Lllllllleong/ocrflow/cmd/ocrflow/ui"
	"github.com/Lllllllleong/ocrflow/internal/services"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <dir>",
	Short: "Rebuild complete.md from the partial results in an output directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		partials, err := services.CollectPartials(args[0])
		if err != nil {
			return err
		}
		if len(partials) == 0 {
			return fmt.Errorf("no partial results found in %s", args[0])
		}
		complete, err := services.Merge(args[0], partials)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(complete)
		if err != nil {
			return err
		}
		pages, err := services.VerifyPageSequence(data)
		if err != nil {
			ui.Error("%s: %v", complete, err)
			return err
		}
		ui.Success("Merged %d partial results (%d pages) into %s", len(partials), pages, complete)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Check that a Markdown result has contiguous page headings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		pages, err := services.VerifyPageSequence(data)
		if err != nil {
			ui.Error("%s: %v", args[0], err)
			return err
		}
		ui.Success("%s: pages 1-%d present", args[0], pages)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd, verifyCmd)
}
