// Package extractor turns a rendered list container into JobRecords.
//
// The browser session hands over a snapshot of the rendered DOM; every
// direct element child of the list container becomes exactly one record,
// in document order. Each declared field is read from the first descendant
// matching its selector, and is the empty string when nothing matches.
package extractor

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/jobsnap/models"
)

// ExtractPage parses the rendered page HTML, locates the first element
// matching listSelector and extracts one record per listing node.
//
// A missing container is an EXTRACTION_FAILED error: the caller already
// waited for the selector, so its absence means the snapshot is unusable.
func ExtractPage(pageHTML, pageURL, listSelector string, fields []models.FieldSpec, website string, capturedAt time.Time) ([]models.JobRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "failed to parse page snapshot", err)
	}

	listMatcher, err := cascadia.Compile(listSelector)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction,
			fmt.Sprintf("invalid list selector %q", listSelector), err)
	}

	container := doc.FindMatcher(listMatcher).First()
	if container.Length() == 0 {
		return nil, models.NewScrapeError(models.ErrCodeExtraction,
			fmt.Sprintf("list container %q not found in page snapshot", listSelector), nil)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		slog.Debug("page URL unparsable, URL properties stay relative", "url", pageURL, "error", err)
		base = nil
	}
	return ExtractList(container, base, fields, website, capturedAt)
}

// ExtractList converts every direct element child of container into a
// JobRecord. base resolves URL-valued properties and may be nil.
func ExtractList(container *goquery.Selection, base *url.URL, fields []models.FieldSpec, website string, capturedAt time.Time) ([]models.JobRecord, error) {
	matchers := make([]cascadia.Selector, len(fields))
	for i, f := range fields {
		m, err := cascadia.Compile(f.Selector)
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeExtraction,
				fmt.Sprintf("invalid selector %q for field %q", f.Selector, f.Name), err)
		}
		matchers[i] = m
	}

	datePosted := capturedAt.UnixMilli()
	listings := container.Children()
	records := make([]models.JobRecord, 0, listings.Length())

	listings.Each(func(_ int, listing *goquery.Selection) {
		rec := models.JobRecord{
			Fields:     make(map[string]string, len(fields)),
			Website:    website,
			DatePosted: datePosted,
		}
		for i, f := range fields {
			rec.Fields[f.Name] = ""
			if el := listing.FindMatcher(matchers[i]).First(); el.Length() > 0 {
				rec.Fields[f.Name] = ReadProperty(el, f.Attribute, base)
			}
		}
		records = append(records, rec)
	})

	return records, nil
}
