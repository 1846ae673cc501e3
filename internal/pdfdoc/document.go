// Package pdfdoc wraps the PDF engines behind a small document/page API:
// MuPDF (go-fitz) rasterizes pages, ledongthuc/pdf yields positioned text and
// pdfcpu validates the payload before either engine sees it.
package pdfdoc

import (
	"context"
	"image"
	"strings"
)

// Engine opens a byte source into a Document.
type Engine interface {
	Open(ctx context.Context, data []byte) (Document, error)
}

// Document is an opened multi-page PDF. Page numbers are 1-based.
type Document interface {
	NumPages() int
	Page(ctx context.Context, number int) (Page, error)
	Close() error
}

// Page is one page of a Document.
type Page interface {
	Number() int
	Viewport(scale float64) Viewport
	Render(ctx context.Context, scale float64) (image.Image, error)
	TextContent(ctx context.Context) (TextContent, error)
}

// Viewport is the pixel geometry of a page at a zoom scale.
type Viewport struct {
	Width  float64
	Height float64
	Scale  float64
}

// Fragment is one positioned run of text. Transform follows the PDF text matrix
// layout [a b c d e f]; e and f are the origin in page space (y up).
type Fragment struct {
	Str       string
	Transform [6]float64
	Width     float64
	Height    float64
	Font      string
}

// Origin returns the fragment's page-space origin.
func (f Fragment) Origin() (x, y float64) {
	return f.Transform[4], f.Transform[5]
}

// TextContent is the ordered fragment sequence of a page.
type TextContent struct {
	Items []Fragment
}

// Joined concatenates every fragment string with a single space.
func (tc TextContent) Joined() string {
	parts := make([]string, len(tc.Items))
	for i, it := range tc.Items {
		parts[i] = it.Str
	}
	return strings.Join(parts, " ")
}
