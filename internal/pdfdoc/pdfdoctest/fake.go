// Package pdfdoctest provides an in-memory pdfdoc.Engine for tests.
package pdfdoctest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/local/pdfseek/internal/pdfdoc"
)

// Page describes one fake page. Width and Height are in points and default
// to US Letter.
type Page struct {
	Fragments []pdfdoc.Fragment
	Width     float64
	Height    float64
	TextErr   error
	TextDelay time.Duration
	RenderErr error
}

// Text is a shorthand for a page of unpositioned fragments.
func Text(strs ...string) Page {
	p := Page{}
	for i, s := range strs {
		p.Fragments = append(p.Fragments, Fragment(s, 72, 720-float64(i)*14, 6*float64(len(s)), 12))
	}
	return p
}

// Fragment builds a fragment at origin (x, y) in page space.
func Fragment(s string, x, y, w, h float64) pdfdoc.Fragment {
	return pdfdoc.Fragment{Str: s, Transform: [6]float64{h, 0, 0, h, x, y}, Width: w, Height: h}
}

// Document is a fake pdfdoc.Document.
type Document struct {
	Pages []Page

	textCalls   atomic.Int32
	renderCalls atomic.Int32
	afterClose  atomic.Int32
	closed      atomic.Bool

	mu         sync.Mutex
	renderLog  []int
	completion []int
}

// NewDocument returns a document with the given pages.
func NewDocument(pages ...Page) *Document { return &Document{Pages: pages} }

func (d *Document) NumPages() int { return len(d.Pages) }

func (d *Document) Page(ctx context.Context, number int) (pdfdoc.Page, error) {
	if number < 1 || number > len(d.Pages) {
		return nil, fmt.Errorf("page %d out of range", number)
	}
	return &page{doc: d, number: number, def: d.Pages[number-1]}, nil
}

func (d *Document) Close() error {
	if d.closed.Swap(true) {
		return errors.New("already closed")
	}
	return nil
}

// TextCalls counts TextContent requests.
func (d *Document) TextCalls() int { return int(d.textCalls.Load()) }

// RenderCalls counts Render requests.
func (d *Document) RenderCalls() int { return int(d.renderCalls.Load()) }

// Rendered lists rendered page numbers in call order.
func (d *Document) Rendered() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.renderLog...)
}

// Completed lists page numbers in the order their text extraction finished.
func (d *Document) Completed() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.completion...)
}

// UsedAfterClose counts Render and TextContent calls made on a closed
// document. The real engine would crash on those.
func (d *Document) UsedAfterClose() int { return int(d.afterClose.Load()) }

// Closed reports whether Close was called.
func (d *Document) Closed() bool { return d.closed.Load() }

type page struct {
	doc    *Document
	number int
	def    Page
}

func (p *page) Number() int { return p.number }

func (p *page) size() (float64, float64) {
	w, h := p.def.Width, p.def.Height
	if w == 0 {
		w = 612
	}
	if h == 0 {
		h = 792
	}
	return w, h
}

func (p *page) Viewport(scale float64) pdfdoc.Viewport {
	w, h := p.size()
	return pdfdoc.Viewport{Width: w * scale, Height: h * scale, Scale: scale}
}

// Render returns a white raster of the viewport size.
func (p *page) Render(ctx context.Context, scale float64) (image.Image, error) {
	p.doc.renderCalls.Add(1)
	if p.doc.closed.Load() {
		p.doc.afterClose.Add(1)
		return nil, errors.New("render on closed document")
	}
	if p.def.RenderErr != nil {
		return nil, p.def.RenderErr
	}
	p.doc.mu.Lock()
	p.doc.renderLog = append(p.doc.renderLog, p.number)
	p.doc.mu.Unlock()
	vp := p.Viewport(scale)
	img := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(vp.Width)), int(math.Ceil(vp.Height))))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img, nil
}

func (p *page) TextContent(ctx context.Context) (pdfdoc.TextContent, error) {
	p.doc.textCalls.Add(1)
	if p.doc.closed.Load() {
		p.doc.afterClose.Add(1)
		return pdfdoc.TextContent{}, errors.New("text on closed document")
	}
	if p.def.TextDelay > 0 {
		select {
		case <-time.After(p.def.TextDelay):
		case <-ctx.Done():
			return pdfdoc.TextContent{}, ctx.Err()
		}
	}
	if p.def.TextErr != nil {
		return pdfdoc.TextContent{}, p.def.TextErr
	}
	p.doc.mu.Lock()
	p.doc.completion = append(p.doc.completion, p.number)
	p.doc.mu.Unlock()
	return pdfdoc.TextContent{Items: append([]pdfdoc.Fragment(nil), p.def.Fragments...)}, nil
}

// Engine opens registered payloads. Unregistered payloads fail like a
// corrupt file would.
type Engine struct {
	mu    sync.Mutex
	docs  map[string]func() *Document
	opens int
}

// NewEngine returns an empty engine.
func NewEngine() *Engine { return &Engine{docs: map[string]func() *Document{}} }

// Register makes Open(payload) return a fresh document built by pages.
func (e *Engine) Register(payload []byte, pages ...Page) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[string(payload)] = func() *Document { return NewDocument(pages...) }
}

// RegisterDocument makes Open(payload) return doc itself.
func (e *Engine) RegisterDocument(payload []byte, doc *Document) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[string(payload)] = func() *Document { return doc }
}

// Opens counts successful Open calls.
func (e *Engine) Opens() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens
}

func (e *Engine) Open(ctx context.Context, data []byte) (pdfdoc.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	build, ok := e.docs[string(data)]
	if !ok {
		return nil, errors.New("invalid pdf structure")
	}
	e.opens++
	return build(), nil
}
