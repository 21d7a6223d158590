// Package schema loads and validates the site schemas driving a batch.
package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/jobsnap/models"
	"gopkg.in/yaml.v3"
)

// Document formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ValidationError describes why one schema entry was rejected.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema entry %d: %s", e.Index, e.Reason)
}

// Store reads, decodes and validates schemas from a Source.
type Store struct {
	source         Source
	format         string
	defaultTimeout time.Duration
}

// NewStore creates a Store. format may be "" to infer it from the document;
// defaultTimeout applies to schemas that declare no timeoutMs.
func NewStore(source Source, format string, defaultTimeout time.Duration) *Store {
	return &Store{
		source:         source,
		format:         strings.ToLower(format),
		defaultTimeout: defaultTimeout,
	}
}

// Load returns every schema in source order. Any read, decode or
// validation failure rejects the whole document with SCHEMA_LOAD_FAILED.
func (s *Store) Load(ctx context.Context) ([]models.SiteSchema, error) {
	doc, err := s.source.Read(ctx)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeSchemaLoad, "schema source unavailable", err)
	}

	format := s.format
	if format == "" {
		format = inferFormat(doc)
	}

	docs, err := Decode(doc.Data, format)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeSchemaLoad, "malformed schema document", err)
	}

	schemas, err := Build(docs, s.defaultTimeout)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeSchemaLoad, "invalid schema", err)
	}

	slog.Debug("schemas loaded", "source", doc.Name, "format", format, "count", len(schemas))
	return schemas, nil
}

// Decode parses a schema document. The top level must be an array.
func Decode(data []byte, format string) ([]models.SiteSchemaDoc, error) {
	var docs []models.SiteSchemaDoc
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatJSON, "":
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported schema format %q", format)
	}
	return docs, nil
}

// Build validates wire entries and converts them to typed schemas.
func Build(docs []models.SiteSchemaDoc, defaultTimeout time.Duration) ([]models.SiteSchema, error) {
	schemas := make([]models.SiteSchema, 0, len(docs))
	for i, d := range docs {
		sc, err := build(i, d, defaultTimeout)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, sc)
	}
	return schemas, nil
}

func build(i int, d models.SiteSchemaDoc, defaultTimeout time.Duration) (models.SiteSchema, error) {
	invalid := func(format string, args ...any) error {
		return &ValidationError{Index: i, Reason: fmt.Sprintf(format, args...)}
	}

	website := strings.TrimSpace(d.Website)
	if website == "" {
		return models.SiteSchema{}, invalid("website is required")
	}

	u, err := url.Parse(strings.TrimSpace(d.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.SiteSchema{}, invalid("url %q must be an absolute http(s) URL", d.URL)
	}

	if strings.TrimSpace(d.JobList) == "" {
		return models.SiteSchema{}, invalid("jobList is required")
	}
	if _, err := cascadia.Compile(d.JobList); err != nil {
		return models.SiteSchema{}, invalid("jobList %q: %v", d.JobList, err)
	}

	if len(d.Selectors) == 0 {
		return models.SiteSchema{}, invalid("at least one selector is required")
	}

	seen := make(map[string]bool, len(d.Selectors))
	fields := make([]models.FieldSpec, 0, len(d.Selectors))
	for j, f := range d.Selectors {
		name := strings.TrimSpace(f.Value)
		switch {
		case name == "":
			return models.SiteSchema{}, invalid("selectors[%d]: value is required", j)
		case name == models.KeyWebsite || name == models.KeyDatePosted:
			return models.SiteSchema{}, invalid("selectors[%d]: %q is assigned by the engine", j, name)
		case seen[name]:
			return models.SiteSchema{}, invalid("selectors[%d]: duplicate field %q", j, name)
		}
		seen[name] = true

		if strings.TrimSpace(f.Selector) == "" {
			return models.SiteSchema{}, invalid("selectors[%d]: selector is required", j)
		}
		if _, err := cascadia.Compile(f.Selector); err != nil {
			return models.SiteSchema{}, invalid("selectors[%d]: selector %q: %v", j, f.Selector, err)
		}

		property := strings.TrimSpace(f.Property)
		if property == "" {
			property = models.PropertyInnerText
		}
		if property == models.AttrPrefix {
			return models.SiteSchema{}, invalid("selectors[%d]: %q names no attribute", j, property)
		}
		fields = append(fields, models.FieldSpec{Name: name, Selector: f.Selector, Attribute: property})
	}

	var action *models.Action
	if d.Actions != nil && strings.TrimSpace(d.Actions.ClickBefore) != "" {
		if _, err := cascadia.Compile(d.Actions.ClickBefore); err != nil {
			return models.SiteSchema{}, invalid("actions.clickBefore %q: %v", d.Actions.ClickBefore, err)
		}
		action = &models.Action{ClickBefore: d.Actions.ClickBefore}
	}

	if d.TimeoutMs < 0 {
		return models.SiteSchema{}, invalid("timeoutMs must not be negative")
	}
	timeout := defaultTimeout
	if d.TimeoutMs > 0 {
		timeout = time.Duration(d.TimeoutMs) * time.Millisecond
	}

	return models.SiteSchema{
		Website:      website,
		URL:          u.String(),
		ListSelector: d.JobList,
		Fields:       fields,
		Action:       action,
		Timeout:      timeout,
	}, nil
}

// inferFormat picks a decoder from the document name, then its content
// type, then its first significant byte.
func inferFormat(doc *Document) string {
	switch strings.ToLower(filepath.Ext(doc.Name)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	if strings.Contains(doc.ContentType, "yaml") {
		return FormatYAML
	}
	if strings.Contains(doc.ContentType, "json") {
		return FormatJSON
	}
	if trimmed := bytes.TrimSpace(doc.Data); len(trimmed) > 0 && trimmed[0] == '[' {
		return FormatJSON
	}
	return FormatYAML
}
