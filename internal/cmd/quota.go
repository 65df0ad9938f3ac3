package cmd

import "github.com/spf13/cobra"

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect and reset stored quota rows",
}

func init() {
	quotaCmd.AddCommand(quotaListCmd)
	quotaCmd.AddCommand(quotaShowCmd)
	quotaCmd.AddCommand(quotaResetCmd)
	rootCmd.AddCommand(quotaCmd)
}
