// Package catalog holds the immutable, per-slug safety rule catalog and the
// (serviceType, subtype) -> slug table shared by the browser pre-check and the
// checkout backstop.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/safetygate/internal/rules"
	"github.com/TimurManjosov/safetygate/internal/targeting"
)

var (
	ErrUnknownSlug    = errors.New("unknown slug")
	ErrUnknownService = errors.New("unknown service")
	ErrDuplicateRule  = errors.New("duplicate rule")
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// ServiceMapping routes a (serviceType, subtype) pair to a slug. An empty
// Subtype is the default for the service type.
type ServiceMapping struct {
	ServiceType string `json:"serviceType" yaml:"serviceType"`
	Subtype     string `json:"subtype,omitempty" yaml:"subtype,omitempty"`
	Slug        string `json:"slug" yaml:"slug"`
}

// Document is the serialized catalog, as stored on disk, in Postgres, or
// served to clients.
type Document struct {
	Version  string             `json:"version" yaml:"version"`
	Services []ServiceMapping   `json:"services,omitempty" yaml:"services,omitempty"`
	Rules    []rules.SafetyRule `json:"rules" yaml:"rules"`
}

type serviceKey struct {
	serviceType string
	subtype     string
}

// Catalog is a validated, read-only rule catalog. All methods are safe for
// concurrent use.
type Catalog struct {
	doc      Document
	version  *semver.Version
	bySlug   map[string][]rules.SafetyRule
	slugs    []string
	services map[serviceKey]string
}

// Parse decodes a YAML or JSON catalog document. Unknown keys are rejected so
// that a misspelled field never silently drops a condition.
func Parse(data []byte) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, fmt.Errorf("%w: document is empty", ErrInvalidCatalog)
		}
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return doc, nil
}

// Load parses and builds in one step.
func Load(data []byte) (*Catalog, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Build(doc)
}

// Build validates doc and indexes it by slug.
func Build(doc Document) (*Catalog, error) {
	v, err := semver.NewVersion(strings.TrimSpace(doc.Version))
	if err != nil {
		return nil, fmt.Errorf("%w: version %q: %v", ErrInvalidCatalog, doc.Version, err)
	}

	c := &Catalog{
		doc:      cloneDocument(doc),
		version:  v,
		bySlug:   make(map[string][]rules.SafetyRule),
		services: make(map[serviceKey]string, len(doc.Services)),
	}

	ids := make(map[string]map[string]struct{})
	for i, r := range c.doc.Rules {
		if err := rules.ValidateRule(r, targeting.ValidateExpression); err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		for _, slug := range r.Slugs {
			seen, ok := ids[slug]
			if !ok {
				seen = make(map[string]struct{})
				ids[slug] = seen
			}
			if _, dup := seen[r.ID]; dup {
				return nil, fmt.Errorf("%w: ruleId %q appears twice for slug %q", ErrDuplicateRule, r.ID, slug)
			}
			seen[r.ID] = struct{}{}
			c.bySlug[slug] = append(c.bySlug[slug], r)
		}
	}

	for i, m := range c.doc.Services {
		if strings.TrimSpace(m.ServiceType) == "" {
			return nil, fmt.Errorf("%w: services[%d] serviceType must not be empty", ErrInvalidCatalog, i)
		}
		if _, ok := c.bySlug[m.Slug]; !ok {
			return nil, fmt.Errorf("%w: services[%d] maps to slug %q which has no rules", ErrInvalidCatalog, i, m.Slug)
		}
		key := serviceKey{serviceType: m.ServiceType, subtype: m.Subtype}
		if prev, dup := c.services[key]; dup {
			return nil, fmt.Errorf("%w: services[%d] (%s, %q) already maps to %q", ErrInvalidCatalog, i, m.ServiceType, m.Subtype, prev)
		}
		c.services[key] = m.Slug
	}

	c.slugs = make([]string, 0, len(c.bySlug))
	for slug := range c.bySlug {
		c.slugs = append(c.slugs, slug)
	}
	sort.Strings(c.slugs)

	return c, nil
}

// RulesForSlug returns the slug's rules in declaration order. The returned
// slice is a copy. A nil Catalog knows no slugs.
func (c *Catalog) RulesForSlug(slug string) ([]rules.SafetyRule, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: %q (no catalog loaded)", ErrUnknownSlug, slug)
	}
	rs, ok := c.bySlug[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlug, slug)
	}
	return slices.Clone(rs), nil
}

// ResolveSlug maps a service selection to a slug. A subtype-specific mapping
// wins over the service type default.
func (c *Catalog) ResolveSlug(serviceType, subtype string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("%w: no catalog loaded", ErrUnknownService)
	}
	if subtype != "" {
		if slug, ok := c.services[serviceKey{serviceType: serviceType, subtype: subtype}]; ok {
			return slug, nil
		}
	}
	if slug, ok := c.services[serviceKey{serviceType: serviceType}]; ok {
		return slug, nil
	}
	return "", fmt.Errorf("%w: serviceType=%q subtype=%q", ErrUnknownService, serviceType, subtype)
}

// Slugs returns every slug with at least one rule, sorted.
func (c *Catalog) Slugs() []string { return slices.Clone(c.slugs) }

// Services returns the service mapping table in declaration order.
func (c *Catalog) Services() []ServiceMapping { return slices.Clone(c.doc.Services) }

// Version returns the catalog's semantic version.
func (c *Catalog) Version() string { return c.version.String() }

// RuleCount is the number of declared rules, counting multi-slug rules once.
func (c *Catalog) RuleCount() int { return len(c.doc.Rules) }

// Document returns a copy of the source document.
func (c *Catalog) Document() Document { return cloneDocument(c.doc) }

// Newer reports whether c carries a higher version than other.
func (c *Catalog) Newer(other *Catalog) bool {
	if other == nil {
		return true
	}
	return c.version.GreaterThan(other.version)
}

func cloneDocument(doc Document) Document {
	out := Document{
		Version:  doc.Version,
		Services: slices.Clone(doc.Services),
		Rules:    make([]rules.SafetyRule, len(doc.Rules)),
	}
	for i, r := range doc.Rules {
		r.Slugs = slices.Clone(r.Slugs)
		out.Rules[i] = r
	}
	return out
}
