// Package htmldoc answers selector queries against a parsed HTML snapshot.
package htmldoc

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is an immutable parsed page.
type Document struct {
	doc *goquery.Document
}

// Parse builds a Document from raw HTML.
func Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &Document{doc: doc}, nil
}

// Text returns the whitespace-normalized text of the first match.
func (d *Document) Text(selector string) (string, bool) {
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	return normSpace(sel.Text()), true
}

// Attr returns attr of the first match. A match lacking the attribute counts as absent.
func (d *Document) Attr(selector, attr string) (string, bool) {
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	v, ok := sel.Attr(attr)
	return strings.TrimSpace(v), ok
}

// AllAttr returns attr of every match that carries it, in document order.
func (d *Document) AllAttr(selector, attr string) []string {
	var out []string
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok {
			out = append(out, strings.TrimSpace(v))
		}
	})
	return out
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
