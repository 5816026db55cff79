package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/safetygate/internal/api"
	"github.com/TimurManjosov/safetygate/internal/cli"
	"github.com/TimurManjosov/safetygate/internal/engine"
	"github.com/TimurManjosov/safetygate/internal/evaluation"
	"github.com/TimurManjosov/safetygate/internal/rules"
	"github.com/TimurManjosov/safetygate/internal/snapshot"
)

var (
	evalSlug        string
	evalService     string
	evalSubtype     string
	evalAnswersFile string
	evalAnswerPairs []string
	evalCheckout    bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate questionnaire answers",
	Long: `Evaluate a set of questionnaire answers against the safety rules for a slug.

Answers come from a JSON or YAML file (--answers, "-" for stdin) and from
repeated --answer key=value pairs, which win over the file. Values "true" and
"false" become booleans, numbers become numbers, and a value containing commas
becomes a list.

With --checkout the command behaves like the checkout backstop and exits
non-zero unless the outcome is PASS.

Examples:
  safetyctl evaluate --slug consult-ed --answer edSafety_nitrates=yes
  safetyctl evaluate --service consult --subtype weight_loss --answers answers.yaml
  safetyctl evaluate --slug med-cert-sick --answer certDays=5 --format json
  cat answers.json | safetyctl evaluate --slug uti --answers - --remote --checkout`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if evalSlug == "" && evalService == "" {
			return errors.New("either --slug or --service is required")
		}
		outFmt, err := outputFormat()
		if err != nil {
			return err
		}

		answers, err := collectAnswers(cmd.InOrStdin())
		if err != nil {
			return err
		}

		ctx := context.Background()
		var res engine.Result
		if remote {
			res, err = evaluateRemote(ctx, answers)
		} else {
			res, err = evaluateLocal(ctx, answers)
		}
		if err != nil && !errors.Is(err, evaluation.ErrBlocked) {
			return err
		}

		if !quiet {
			if perr := cli.PrintResult(cmd.OutOrStdout(), res, outFmt); perr != nil {
				return perr
			}
		}
		return err
	},
}

func evaluateLocal(ctx context.Context, answers rules.Answers) (engine.Result, error) {
	c, source, err := localCatalog(ctx)
	if err != nil {
		return engine.Result{}, err
	}
	snap := snapshot.Build(c, source)
	svc := evaluation.NewService(func() *snapshot.Snapshot { return snap }, nil, commandLogger())

	req := evaluation.Request{
		Slug:        evalSlug,
		ServiceType: evalService,
		Subtype:     evalSubtype,
		Answers:     answers,
	}
	if evalCheckout {
		return svc.Verify(ctx, req)
	}
	return svc.Check(ctx, req), nil
}

func evaluateRemote(ctx context.Context, answers rules.Answers) (engine.Result, error) {
	c, err := remoteClient()
	if err != nil {
		return engine.Result{}, err
	}
	req := api.EvaluateRequest{
		Slug:        evalSlug,
		ServiceType: evalService,
		Subtype:     evalSubtype,
		Answers:     answers,
	}

	if evalCheckout {
		resp, err := c.Verify(ctx, req)
		if err != nil {
			return engine.Result{}, fmt.Errorf("failed to verify checkout: %w", err)
		}
		if !resp.Allowed {
			return resp.Result, &evaluation.BlockedError{Result: resp.Result}
		}
		return resp.Result, nil
	}

	resp, err := c.Evaluate(ctx, req)
	if err != nil {
		return engine.Result{}, fmt.Errorf("failed to evaluate: %w", err)
	}
	return resp.Result, nil
}

// collectAnswers merges the --answers document with --answer pairs.
func collectAnswers(stdin io.Reader) (rules.Answers, error) {
	answers := rules.Answers{}

	if evalAnswersFile != "" {
		var (
			data []byte
			err  error
		)
		if evalAnswersFile == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(evalAnswersFile)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read answers: %w", err)
		}
		// YAML is a superset of JSON
		if err := yaml.Unmarshal(data, &answers); err != nil {
			return nil, fmt.Errorf("failed to parse answers: %w", err)
		}
		if answers == nil {
			answers = rules.Answers{}
		}
	}

	for _, pair := range evalAnswerPairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --answer %q, expected key=value", pair)
		}
		answers[key] = parseAnswerValue(value)
	}
	return answers, nil
}

func parseAnswerValue(s string) any {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		list := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		return list
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	if f, ok := rules.ParseDecimal(s); ok {
		return f
	}
	return s
}

func init() {
	evaluateCmd.Flags().StringVar(&evalSlug, "slug", "", "Safety slug to evaluate")
	evaluateCmd.Flags().StringVar(&evalService, "service", "", "Service type, resolved to a slug by the catalog")
	evaluateCmd.Flags().StringVar(&evalSubtype, "subtype", "", "Service subtype")
	evaluateCmd.Flags().StringVar(&evalAnswersFile, "answers", "", "JSON or YAML answers file (- for stdin)")
	evaluateCmd.Flags().StringArrayVar(&evalAnswerPairs, "answer", nil, "Answer as key=value (repeatable)")
	evaluateCmd.Flags().BoolVar(&evalCheckout, "checkout", false, "Fail unless the outcome is PASS")
	rootCmd.AddCommand(evaluateCmd)
}
