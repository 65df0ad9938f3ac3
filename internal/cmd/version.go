package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/policyworks/quotaledger/internal/rules"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for build, dependency and rule type details.",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		identity := GetAppIdentity()

		fmt.Fprintf(w, "%s %s\n", identity.BinaryName, versionInfo.Version)
		if !extended {
			return nil
		}

		version := crucible.GetVersion()
		fmt.Fprintf(w, "Commit: %s\n", versionInfo.Commit)
		fmt.Fprintf(w, "Built: %s\n", versionInfo.BuildDate)
		fmt.Fprintf(w, "Go: %s\n", runtime.Version())
		fmt.Fprintf(w, "Gofulmen: %s\n", version.Gofulmen)
		fmt.Fprintf(w, "Crucible: %s\n", version.Crucible)
		fmt.Fprintf(w, "Rule types: %d\n", len(rules.Default.Names()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
