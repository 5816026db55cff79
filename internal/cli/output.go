package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/safetygate/internal/catalog"
	"github.com/TimurManjosov/safetygate/internal/engine"
	"github.com/TimurManjosov/safetygate/internal/rules"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// PrintResult outputs an evaluation result in the specified format
func PrintResult(w io.Writer, res engine.Result, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, res)
	case FormatYAML:
		// engine types only carry json tags
		return printYAMLViaJSON(w, res)
	case FormatTable:
		return printResultTable(w, res)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintRules outputs a slug's rules in the specified format
func PrintRules(w io.Writer, rs []rules.SafetyRule, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, map[string][]rules.SafetyRule{"rules": rs})
	case FormatYAML:
		return printYAML(w, map[string][]rules.SafetyRule{"rules": rs})
	case FormatTable:
		return printRulesTable(w, rs)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintSlugs outputs the slug list and service mapping in the specified format
func PrintSlugs(w io.Writer, slugs []string, services []catalog.ServiceMapping, format OutputFormat) error {
	payload := struct {
		Slugs    []string                 `json:"slugs" yaml:"slugs"`
		Services []catalog.ServiceMapping `json:"services" yaml:"services"`
	}{slugs, services}

	switch format {
	case FormatJSON:
		return printJSON(w, payload)
	case FormatYAML:
		return printYAML(w, payload)
	case FormatTable:
		return printServicesTable(w, slugs, services)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteDocument serializes a catalog document as YAML or JSON.
func WriteDocument(w io.Writer, doc catalog.Document, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, doc)
	case FormatYAML:
		return printYAML(w, doc)
	default:
		return fmt.Errorf("export supports json or yaml, got %s", format)
	}
}

// DescribeCondition renders a condition on one line, e.g.
// "all(edSafety_bloodPressure in [high low], edSafety_bpManaged neq yes)".
func DescribeCondition(c rules.Condition) string {
	switch c.Kind() {
	case rules.KindAll:
		return "all(" + describeChildren(c.All) + ")"
	case rules.KindAny:
		return "any(" + describeChildren(c.Any) + ")"
	case rules.KindExpression:
		return "expr " + c.Expr
	case rules.KindBoolean:
		return c.Field + " " + string(c.Op.Canonical())
	case rules.KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("%s %s %v", c.Field, c.Op.Canonical(), c.Value)
	}
}

func describeChildren(cs []rules.Condition) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = DescribeCondition(c)
	}
	return strings.Join(parts, ", ")
}

func printJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func printYAML(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

func printYAMLViaJSON(w io.Writer, data any) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(blob, &generic); err != nil {
		return err
	}
	return printYAML(w, generic)
}

func printResultTable(w io.Writer, res engine.Result) error {
	fmt.Fprintf(w, "Slug: %s\nOutcome: %s\nRisk tier: %s\n", res.Slug, res.Outcome, res.RiskTier)
	if res.PatientTitle != "" {
		fmt.Fprintf(w, "Patient title: %s\n", res.PatientTitle)
	}
	if res.PatientMessage != "" {
		fmt.Fprintf(w, "Patient message: %s\n", res.PatientMessage)
	}

	if len(res.TriggeredRules) > 0 {
		fmt.Fprintln(w)
		table := tablewriter.NewWriter(w)
		table.Header("Rule", "Outcome", "Risk", "Absolute", "Title")
		for _, tr := range res.TriggeredRules {
			table.Append(
				tr.RuleID,
				string(tr.Outcome),
				string(tr.RiskTier),
				strconv.FormatBool(tr.Absolute),
				truncate(tr.PatientTitle, 48),
			)
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	for _, n := range res.Notices {
		line := "Notice: " + string(n.Kind)
		if n.RuleID != "" {
			line += " rule=" + n.RuleID
		}
		if n.Field != "" {
			line += " field=" + n.Field
		}
		if n.Detail != "" {
			line += " (" + n.Detail + ")"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func printRulesTable(w io.Writer, rs []rules.SafetyRule) error {
	table := tablewriter.NewWriter(w)
	table.Header("Rule", "Outcome", "Risk", "Absolute", "Condition")
	for _, r := range rs {
		table.Append(
			r.ID,
			string(r.Outcome),
			string(r.RiskTier),
			strconv.FormatBool(r.Absolute),
			truncate(DescribeCondition(r.Condition), 60),
		)
	}
	return table.Render()
}

func printServicesTable(w io.Writer, slugs []string, services []catalog.ServiceMapping) error {
	table := tablewriter.NewWriter(w)
	table.Header("Service Type", "Subtype", "Slug")

	mapped := make(map[string]bool, len(services))
	for _, m := range services {
		subtype := m.Subtype
		if subtype == "" {
			subtype = "(default)"
		}
		table.Append(m.ServiceType, subtype, m.Slug)
		mapped[m.Slug] = true
	}
	// slugs reachable only by name
	for _, slug := range slugs {
		if !mapped[slug] {
			table.Append("-", "-", slug)
		}
	}
	return table.Render()
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
