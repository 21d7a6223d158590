package schema

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/jobsnap/models"
)

const indeedJSON = `[
  {
    "website": "Indeed",
    "url": "https://www.indeed.com/jobs?q=java+developer&l=United+States",
    "jobList": "#mosaic-provider-jobcards > ul",
    "selectors": [
      {"value": "title", "selector": ".jobTitle", "property": "innerText"},
      {"value": "company", "selector": "[data-testid='company-name']", "property": "innerText"},
      {"value": "url", "selector": ".jobTitle > a", "property": "href"}
    ],
    "actions": null
  },
  {
    "website": "Glassdoor",
    "url": "https://www.glassdoor.com/Job/java-developer-jobs.htm",
    "jobList": "ul[aria-label='Jobs List']",
    "selectors": [
      {"value": "title", "selector": "a[data-test='job-title']"}
    ],
    "actions": {"clickBefore": "button.CloseButton"},
    "timeoutMs": 10000
  }
]`

const indeedYAML = `
- website: Indeed
  url: https://www.indeed.com/jobs?q=golang
  jobList: "#mosaic-provider-jobcards > ul"
  selectors:
    - value: title
      selector: .jobTitle
`

func TestStore_LoadJSON(t *testing.T) {
	store := NewStore(StaticSource{Name: "schema.json", Data: []byte(indeedJSON)}, "", 5*time.Second)

	schemas, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(schemas) != 2 {
		t.Fatalf("expected 2 schemas, got %d", len(schemas))
	}

	indeed := schemas[0]
	if indeed.Website != "Indeed" || indeed.ListSelector != "#mosaic-provider-jobcards > ul" {
		t.Errorf("unexpected first schema: %+v", indeed)
	}
	if got := strings.Join(indeed.FieldNames(), ","); got != "title,company,url" {
		t.Errorf("field order = %s", got)
	}
	if indeed.Action != nil {
		t.Errorf("expected no action, got %+v", indeed.Action)
	}
	if indeed.Timeout != 5*time.Second {
		t.Errorf("default timeout = %v, want 5s", indeed.Timeout)
	}

	glassdoor := schemas[1]
	if glassdoor.Fields[0].Attribute != models.PropertyInnerText {
		t.Errorf("empty property should default to innerText, got %q", glassdoor.Fields[0].Attribute)
	}
	if glassdoor.Action == nil || glassdoor.Action.ClickBefore != "button.CloseButton" {
		t.Errorf("action = %+v", glassdoor.Action)
	}
	if glassdoor.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", glassdoor.Timeout)
	}
}

func TestStore_LoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(indeedYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	schemas, err := NewStore(NewSource(path), "", time.Second).Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(schemas) != 1 || schemas[0].Fields[0].Selector != ".jobTitle" {
		t.Errorf("unexpected schemas: %+v", schemas)
	}
}

func TestStore_LoadHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bucket/schema" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(indeedJSON))
	}))
	defer srv.Close()

	schemas, err := NewStore(NewSource(srv.URL+"/bucket/schema"), "", time.Second).Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(schemas) != 2 {
		t.Errorf("expected 2 schemas, got %d", len(schemas))
	}
}

func TestStore_SourceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tests := []struct {
		name   string
		source Source
	}{
		{"http error status", NewSource(srv.URL + "/schema.json")},
		{"missing file", FileSource{Path: filepath.Join(t.TempDir(), "nope.json")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore(tt.source, "", time.Second).Load(context.Background())
			if code := models.CodeOf(err); code != models.ErrCodeSchemaLoad {
				t.Errorf("error code = %q, want %q (err: %v)", code, models.ErrCodeSchemaLoad, err)
			}
		})
	}
}

func TestStore_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"truncated json", `[{"website": "Indeed"`},
		{"object at top level", `{"website": "Indeed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore(StaticSource{Name: "schema.json", Data: []byte(tt.data)}, "", time.Second).Load(context.Background())
			if code := models.CodeOf(err); code != models.ErrCodeSchemaLoad {
				t.Errorf("error code = %q, want %q", code, models.ErrCodeSchemaLoad)
			}
		})
	}
}

func TestBuild_Validation(t *testing.T) {
	valid := func() models.SiteSchemaDoc {
		return models.SiteSchemaDoc{
			Website:   "Indeed",
			URL:       "https://www.indeed.com/jobs",
			JobList:   "ul.jobs",
			Selectors: []models.FieldSpecDoc{{Value: "title", Selector: ".jobTitle"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*models.SiteSchemaDoc)
		reason string
	}{
		{"missing website", func(d *models.SiteSchemaDoc) { d.Website = " " }, "website"},
		{"relative url", func(d *models.SiteSchemaDoc) { d.URL = "/jobs" }, "absolute"},
		{"ftp url", func(d *models.SiteSchemaDoc) { d.URL = "ftp://example.com/jobs" }, "absolute"},
		{"missing jobList", func(d *models.SiteSchemaDoc) { d.JobList = "" }, "jobList"},
		{"bad jobList", func(d *models.SiteSchemaDoc) { d.JobList = "ul[" }, "jobList"},
		{"no selectors", func(d *models.SiteSchemaDoc) { d.Selectors = nil }, "at least one"},
		{"reserved name", func(d *models.SiteSchemaDoc) { d.Selectors[0].Value = "datePosted" }, "engine"},
		{"duplicate name", func(d *models.SiteSchemaDoc) {
			d.Selectors = append(d.Selectors, models.FieldSpecDoc{Value: "title", Selector: "h2"})
		}, "duplicate"},
		{"bad field selector", func(d *models.SiteSchemaDoc) { d.Selectors[0].Selector = "h2[" }, "selector"},
		{"bad click selector", func(d *models.SiteSchemaDoc) { d.Actions = &models.ActionDoc{ClickBefore: "a[href"} }, "clickBefore"},
		{"negative timeout", func(d *models.SiteSchemaDoc) { d.TimeoutMs = -1 }, "timeoutMs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(&d)

			_, err := Build([]models.SiteSchemaDoc{valid(), d}, time.Second)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Index != 1 {
				t.Errorf("Index = %d, want 1", ve.Index)
			}
			if !strings.Contains(ve.Reason, tt.reason) {
				t.Errorf("Reason = %q, want it to mention %q", ve.Reason, tt.reason)
			}
		})
	}
}

// One invalid entry rejects the whole document.
func TestStore_NoPartialLoad(t *testing.T) {
	data := `[
	  {"website": "A", "url": "https://a.example.com", "jobList": "ul", "selectors": [{"value": "t", "selector": "h2"}]},
	  {"website": "B", "url": "not a url", "jobList": "ul", "selectors": [{"value": "t", "selector": "h2"}]}
	]`
	schemas, err := NewStore(StaticSource{Data: []byte(data)}, FormatJSON, time.Second).Load(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if schemas != nil {
		t.Errorf("expected no schemas, got %d", len(schemas))
	}
}

func TestInferFormat(t *testing.T) {
	tests := []struct {
		doc  Document
		want string
	}{
		{Document{Name: "schema.yml"}, FormatYAML},
		{Document{Name: "schema.JSON"}, FormatJSON},
		{Document{Name: "schema", ContentType: "application/x-yaml"}, FormatYAML},
		{Document{Name: "schema", ContentType: "application/json; charset=utf-8"}, FormatJSON},
		{Document{Data: []byte("  \n[ ]")}, FormatJSON},
		{Document{Data: []byte("- website: A")}, FormatYAML},
	}

	for _, tt := range tests {
		if got := inferFormat(&tt.doc); got != tt.want {
			t.Errorf("inferFormat(%+v) = %q, want %q", tt.doc, got, tt.want)
		}
	}
}
