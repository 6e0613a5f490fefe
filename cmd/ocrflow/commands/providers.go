package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/Lllllllleong/ocrflow/internal/providers"
	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the available OCR providers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME")
		for _, info := range providers.DefaultRegistry().Available() {
			fmt.Fprintf(w, "%s\t%s\n", info.ID, info.Name)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
