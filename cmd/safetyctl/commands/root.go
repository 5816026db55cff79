package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TimurManjosov/safetygate/internal/catalog"
	"github.com/TimurManjosov/safetygate/internal/cli"
	"github.com/TimurManjosov/safetygate/internal/client"
	"github.com/TimurManjosov/safetygate/internal/store"
)

var (
	// Global flags
	baseURL     string
	env         string
	format      string
	catalogPath string
	remote      bool
	quiet       bool
	verbose     bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "safetyctl",
	Short: "CLI tool for clinical safety rule catalogs",
	Long: `safetyctl validates, inspects and exercises safety rule catalogs.

Commands run offline against the embedded catalog (or --catalog <file>) unless
--remote is given, in which case they call a running safetygate server.

Examples:
  safetyctl validate rules.yaml
  safetyctl slugs
  safetyctl rules consult-ed --format json
  safetyctl evaluate --slug consult-ed --answer edSafety_nitrates=yes
  safetyctl evaluate --service consult --subtype uti --answers answers.json --remote
  safetyctl export --output catalog.yaml
  safetyctl seed --dsn postgres://localhost/safetygate --migrate`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the safetygate API")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "Environment from the config file (dev, staging, prod)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "Local catalog file (default: embedded catalog)")
	rootCmd.PersistentFlags().BoolVar(&remote, "remote", false, "Use the safetygate API instead of a local catalog")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
}

func outputFormat() (cli.OutputFormat, error) {
	return cli.ParseFormat(format)
}

// commandLogger writes to stderr when --verbose is set.
func commandLogger() zerolog.Logger {
	if !verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// remoteClient builds an API client from flags, env vars and the config file.
func remoteClient() (*client.Client, error) {
	envCfg, envName, err := cli.GetEnvConfig(env, baseURL)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if envCfg.BaseURL == "" {
		return nil, fmt.Errorf("no base URL for environment '%s': use --base-url, %s or 'safetyctl config set %s.base_url <url>'",
			envName, cli.EnvBaseURL, envName)
	}
	return client.NewClient(envCfg.BaseURL), nil
}

// localCatalog loads and validates the catalog named by --catalog, the
// environment's configured catalog file, or the embedded catalog.
func localCatalog(ctx context.Context) (*catalog.Catalog, string, error) {
	path := catalogPath
	if path == "" {
		envCfg, _, err := cli.GetEnvConfig(env, baseURL)
		if err != nil {
			return nil, "", fmt.Errorf("configuration error: %w", err)
		}
		path = envCfg.Catalog
	}

	kind := store.KindEmbedded
	if path != "" {
		kind = store.KindFile
	}
	src, err := store.NewSource(ctx, kind, path)
	if err != nil {
		return nil, "", err
	}
	defer src.Close()

	c, err := store.LoadCatalog(ctx, src)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load catalog from %s: %w", src.Name(), err)
	}
	return c, src.Name(), nil
}
