package models

import "time"

// Field properties understood by the extractor.
const (
	PropertyInnerText   = "innerText"
	PropertyTextContent = "textContent"
	PropertyInnerHTML   = "innerHTML"
	PropertyOuterHTML   = "outerHTML"
	PropertyHref        = "href"
	PropertySrc         = "src"
	PropertyAction      = "action"

	// AttrPrefix reads the raw attribute named after the prefix, e.g. "attr:data-id".
	AttrPrefix = "attr:"
)

// Engine-assigned record keys. Schemas may not declare fields with these names.
const (
	KeyWebsite    = "website"
	KeyDatePosted = "datePosted"
)

// SiteSchemaDoc is the wire shape of one schema entry as found in the
// schema source (JSON or YAML).
type SiteSchemaDoc struct {
	Website   string         `json:"website" yaml:"website"`
	URL       string         `json:"url" yaml:"url"`
	JobList   string         `json:"jobList" yaml:"jobList"`
	Selectors []FieldSpecDoc `json:"selectors" yaml:"selectors"`
	Actions   *ActionDoc     `json:"actions" yaml:"actions"`
	TimeoutMs int            `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
}

// FieldSpecDoc is the wire shape of one field selector.
type FieldSpecDoc struct {
	Value    string `json:"value" yaml:"value"`
	Selector string `json:"selector" yaml:"selector"`
	Property string `json:"property" yaml:"property"`
}

// ActionDoc is the wire shape of the optional pre-extraction interaction.
type ActionDoc struct {
	ClickBefore string `json:"clickBefore" yaml:"clickBefore"`
}

// SiteSchema is the validated, typed description of how to scrape one site.
// It is read-only for the duration of a batch.
type SiteSchema struct {
	// Website is the literal display name copied onto every record.
	Website string

	// URL is the entry URL. Pagination, when present, is encoded literally.
	URL string

	// ListSelector identifies the container whose direct children are listings.
	ListSelector string

	// Fields are extracted from every listing node, in declaration order.
	Fields []FieldSpec

	// Action is the optional interaction performed before waiting for the list.
	Action *Action

	// Timeout bounds the wait for ListSelector to appear.
	Timeout time.Duration
}

// FieldSpec names one output field and where to read it from.
type FieldSpec struct {
	Name      string
	Selector  string
	Attribute string
}

// Action is a single pre-extraction interaction.
type Action struct {
	ClickBefore string
}

// FieldNames returns the declared field names in order.
func (s SiteSchema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}
