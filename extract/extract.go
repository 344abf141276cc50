// Package extract pulls the newest listing out of fetched page content.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"listing-notifier/pkg/watch"
)

// DefaultQuery matches the newest listing link on a jmty.jp search page.
const DefaultQuery = ".list_item .post-link"

// Selector extracts the newest listing from a page using a CSS selector.
// Different target sites use different selectors, so the query and base
// origin are configuration; the scheduler only sees the Listing-or-nil
// result.
type Selector struct {
	query  string
	base   *url.URL
	logger *slog.Logger
}

// New creates an extractor. query selects the anchor element whose text is
// the listing title and whose href points at the listing; base resolves
// relative hrefs to absolute links.
func New(query string, base *url.URL, logger *slog.Logger) *Selector {
	return &Selector{
		query:  query,
		base:   base,
		logger: logger,
	}
}

// Extract returns the newest listing on the page, or nil when the page has
// no matching element. A nil listing is an expected outcome (an empty result
// set), not an error.
func (s *Selector) Extract(content []byte) (*watch.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	sel := doc.Find(s.query).First()
	if sel.Length() == 0 {
		return nil, nil
	}

	title := strings.TrimSpace(sel.Text())
	if title == "" {
		return nil, nil
	}

	var link string
	if href, ok := sel.Attr("href"); ok {
		link = s.resolve(href)
	}

	return &watch.Listing{Title: title, Link: link}, nil
}

// resolve normalizes a possibly relative href against the base origin.
func (s *Selector) resolve(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		s.logger.Warn("Unparseable listing href", "href", href, "error", err)
		return ""
	}
	return s.base.ResolveReference(ref).String()
}
