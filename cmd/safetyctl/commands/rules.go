package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/safetygate/internal/catalog"
	"github.com/TimurManjosov/safetygate/internal/cli"
	"github.com/TimurManjosov/safetygate/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules <slug>",
	Short: "Show the safety rules for a slug",
	Long: `Show the ordered safety rules that apply to a slug.

Examples:
  safetyctl rules consult-ed
  safetyctl rules weight-loss --format yaml
  safetyctl rules uti --remote --env staging`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug := args[0]
		outFmt, err := outputFormat()
		if err != nil {
			return err
		}

		ctx := context.Background()
		var rs []rules.SafetyRule
		if remote {
			c, err := remoteClient()
			if err != nil {
				return err
			}
			resp, err := c.Rules(ctx, slug)
			if err != nil {
				return fmt.Errorf("failed to get rules: %w", err)
			}
			rs = resp.Rules
		} else {
			c, _, err := localCatalog(ctx)
			if err != nil {
				return err
			}
			rs, err = c.RulesForSlug(slug)
			if errors.Is(err, catalog.ErrUnknownSlug) {
				return fmt.Errorf("slug '%s' is not in the catalog (evaluations for it fail open to PASS)", slug)
			}
			if err != nil {
				return err
			}
		}

		if quiet {
			return nil
		}
		return cli.PrintRules(cmd.OutOrStdout(), rs, outFmt)
	},
}

var slugsCmd = &cobra.Command{
	Use:   "slugs",
	Short: "List safety slugs and the services that map to them",
	Long: `List every slug in the catalog together with the service type and
subtype mapping used by the checkout backstop.

Examples:
  safetyctl slugs
  safetyctl slugs --remote --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outFmt, err := outputFormat()
		if err != nil {
			return err
		}

		ctx := context.Background()
		var (
			slugs    []string
			services []catalog.ServiceMapping
		)
		if remote {
			c, err := remoteClient()
			if err != nil {
				return err
			}
			resp, err := c.Slugs(ctx)
			if err != nil {
				return fmt.Errorf("failed to list slugs: %w", err)
			}
			slugs, services = resp.Slugs, resp.Services
		} else {
			c, _, err := localCatalog(ctx)
			if err != nil {
				return err
			}
			slugs, services = c.Slugs(), c.Services()
		}

		if quiet {
			return nil
		}
		return cli.PrintSlugs(cmd.OutOrStdout(), slugs, services, outFmt)
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(slugsCmd)
}
