package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensesh/sesh/internal/version"
)

var versionOutput string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		switch versionOutput {
		case "json":
			encoded, err := info.ToJSONIndent()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
		case "short":
			fmt.Fprintln(cmd.OutOrStdout(), info.ShortString())
		case "text":
			fmt.Fprintln(cmd.OutOrStdout(), info.Text())
		default:
			return fmt.Errorf("unsupported output format: %s (use text, json or short)", versionOutput)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", "text", "Output format: text, json, short")
	rootCmd.Version = version.Get().String()
}
