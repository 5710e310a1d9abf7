package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"transitperf/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("transitperf.internal.render")

// ErrRender marks a page that could not be loaded, or a browser session that
// could not be started.
var ErrRender = errors.New("render failure")

type RenderError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *RenderError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("render %s (%d attempts): %v", e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("render %s: %v", e.URL, e.Err)
}

func (e *RenderError) Unwrap() []error {
	return []error{ErrRender, e.Err}
}

// Renderer loads a URL and returns the page as the browser sees it after
// client side rendering.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
}

// Page is a rendered document.
type Page struct {
	url  string
	html string
	doc  *goquery.Document
}

// NewPage parses rendered html.
func NewPage(url, html string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Page{}, &RenderError{URL: url, Err: fmt.Errorf("parse html: %w", err)}
	}
	return Page{url: url, html: html, doc: doc}, nil
}

func (p Page) URL() string {
	return p.url
}

// HTML returns the full serialized document.
func (p Page) HTML() string {
	return p.html
}

// Find returns every node matching a CSS selector. An invalid selector matches
// nothing.
func (p Page) Find(selector string) *goquery.Selection {
	if p.doc == nil {
		return &goquery.Selection{}
	}
	return p.doc.Find(selector)
}

// Texts returns the visible text of every node matching a CSS selector, in
// document order.
func (p Page) Texts(selector string) []string {
	return htmlutil.Texts(p.Find(selector))
}
