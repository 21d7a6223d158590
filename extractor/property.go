package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/jobsnap/models"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ReadProperty reads a DOM-property-like value from the first node of sel.
//
//   - innerText (and the empty default): text, whitespace collapsed per line
//   - textContent: raw descendant text
//   - innerHTML / outerHTML: markup
//   - href / src / action: attribute resolved against base, like the DOM property
//   - attr:<name>: the raw attribute
//   - anything else: the attribute of that name
//
// Missing attributes read as "".
func ReadProperty(sel *goquery.Selection, property string, base *url.URL) string {
	switch property {
	case "", models.PropertyInnerText:
		return innerText(sel)
	case models.PropertyTextContent:
		return sel.Text()
	case models.PropertyInnerHTML:
		h, err := sel.Html()
		if err != nil {
			return ""
		}
		return h
	case models.PropertyOuterHTML:
		h, err := goquery.OuterHtml(sel)
		if err != nil {
			return ""
		}
		return h
	case models.PropertyHref, models.PropertySrc, models.PropertyAction:
		v, ok := sel.Attr(property)
		if !ok {
			return ""
		}
		return resolveURL(base, v)
	case "className":
		return sel.AttrOr("class", "")
	}

	if name, ok := strings.CutPrefix(property, models.AttrPrefix); ok {
		return sel.AttrOr(name, "")
	}
	return sel.AttrOr(property, "")
}

// blockElements start and end a line in rendered text.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Caption: true, atom.Dd: true, atom.Details: true, atom.Dialog: true,
	atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Fieldset: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hgroup: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Summary: true, atom.Table: true, atom.Tbody: true,
	atom.Tfoot: true, atom.Thead: true, atom.Tr: true, atom.Ul: true,
}

// hiddenElements never contribute rendered text.
var hiddenElements = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Template: true,
	atom.Noscript: true, atom.Iframe: true,
}

// innerText approximates the DOM innerText of the first node of sel on a
// static snapshot. Source whitespace collapses to single spaces; <br> and
// block boundaries become line breaks; table cells are space separated.
func innerText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	var b strings.Builder
	for c := sel.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		writeRendered(&b, c)
	}
	return collapseText(b.String())
}

func writeRendered(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(strings.Map(func(r rune) rune {
			if r == '\n' || r == '\r' {
				return ' '
			}
			return r
		}, n.Data))
		return
	case html.ElementNode:
	default:
		return
	}

	switch {
	case hiddenElements[n.DataAtom]:
		return
	case n.DataAtom == atom.Br:
		b.WriteByte('\n')
		return
	case n.DataAtom == atom.Td || n.DataAtom == atom.Th:
		b.WriteByte(' ')
	}

	block := blockElements[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeRendered(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}

// collapseText turns runs of whitespace inside a line into one space and
// drops blank lines.
func collapseText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if l := strings.Join(strings.Fields(line), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func resolveURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}
