package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opensesh/sesh/core/registry"
)

var providersOutput string

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the configured providers",
	Long: `List the configured providers, their current model and whether they are active.

Examples:
  sesh providers
  sesh providers -o json
  sesh --config providers.yaml providers -o yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		providers, err := loadRegistry()
		if err != nil {
			return err
		}
		return renderProviders(cmd.OutOrStdout(), providers.Infos(), providersOutput)
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.Flags().StringVarP(&providersOutput, "output", "o", "table", "Output format: table, json, yaml")
}

func renderProviders(w io.Writer, infos []registry.Info, format string) error {
	switch format {
	case "table":
		if len(infos) == 0 {
			_, err := fmt.Fprintln(w, "No providers configured.")
			return err
		}
		table := uitable.New()
		table.MaxColWidth = 60
		table.AddRow("", "NAME", "PROVIDER", "MODEL", "TOOLS", "MODELS")
		for _, info := range infos {
			marker := ""
			if info.Active {
				marker = "*"
			}
			table.AddRow(marker, info.Name, info.DisplayName, info.Model, info.SupportsTools, strings.Join(info.AvailableModels, ", "))
		}
		_, err := fmt.Fprintln(w, table.String())
		return err
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(infos)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(infos); err != nil {
			return fmt.Errorf("encode providers: %w", err)
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported output format: %s (use table, json or yaml)", format)
	}
}
