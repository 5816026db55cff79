package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/safetygate/internal/catalog"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate catalog files",
	Long: `Parse and validate one or more catalog files. With no arguments the
embedded catalog is validated.

Every rule is checked for a known outcome and risk tier, a patient message on
DECLINE rules, absolute flags only on critical DECLINE rules, well-formed
conditions and compilable expressions. Service mappings must point at
known slugs.

Examples:
  safetyctl validate
  safetyctl validate rules.yaml staging-rules.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			c := catalog.Default()
			if !quiet {
				fmt.Fprintf(out, "✓ embedded: version %s, %d rules, %d slugs\n", c.Version(), c.RuleCount(), len(c.Slugs()))
			}
			return nil
		}

		failed := 0
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			c, err := catalog.Load(data)
			if err != nil {
				failed++
				fmt.Fprintf(out, "✗ %s: %v\n", path, err)
				continue
			}
			if !quiet {
				fmt.Fprintf(out, "✓ %s: version %s, %d rules, %d slugs\n", path, c.Version(), c.RuleCount(), len(c.Slugs()))
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d catalog(s) invalid", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
