package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/safetygate/internal/catalog"
	"github.com/TimurManjosov/safetygate/internal/cli"
)

var (
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog to a file",
	Long: `Export the full catalog (version, service mapping and rules) as YAML or JSON.
The table format falls back to YAML. The output can be fed back to
'safetyctl validate', '--catalog' or 'safetyctl seed'.

Examples:
  safetyctl export --output catalog.yaml
  safetyctl export --remote --env prod --format json --output prod-catalog.json
  safetyctl export > backup.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outFmt, err := outputFormat()
		if err != nil {
			return err
		}
		if outFmt == cli.FormatTable {
			outFmt = cli.FormatYAML
		}

		ctx := context.Background()
		var doc catalog.Document
		if remote {
			c, err := remoteClient()
			if err != nil {
				return err
			}
			resp, err := c.Catalog(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch catalog: %w", err)
			}
			doc = resp.Catalog
		} else {
			c, _, err := localCatalog(ctx)
			if err != nil {
				return err
			}
			doc = c.Document()
		}

		// Determine output destination
		var output io.Writer = cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			output = f
		}

		if err := cli.WriteDocument(output, doc, outFmt); err != nil {
			return fmt.Errorf("failed to encode catalog: %w", err)
		}

		if exportOutput != "" && exportOutput != "-" && !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Successfully exported %d rule(s) to %s\n", len(doc.Rules), exportOutput)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
}
