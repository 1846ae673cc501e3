package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	fitz "github.com/gen2brain/go-fitz"
	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// ErrEmptyDocument is returned for payloads that parse but contain no pages.
var ErrEmptyDocument = errors.New("pdf has no pages")

func init() {
	// pdfcpu otherwise creates a config dir under the user's home on first use
	api.DisableConfigDir()
}

// MuPDFEngine opens documents with go-fitz for rendering and ledongthuc/pdf
// for text. pdfcpu validation is advisory: MuPDF repairs files pdfcpu rejects
// (broken xref tables, empty user passwords), so only MuPDF decides whether a
// payload opens.
type MuPDFEngine struct {
	conf *model.Configuration

	validate func(data []byte) (int, error)
	openText func(data []byte) (*lpdf.Reader, error)
}

// NewMuPDFEngine creates the default engine.
func NewMuPDFEngine() *MuPDFEngine {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	e := &MuPDFEngine{conf: conf, openText: openTextLayer}
	e.validate = e.Validate
	return e
}

func openTextLayer(data []byte) (*lpdf.Reader, error) {
	return lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// Validate checks the payload structure and returns its page count.
func (e *MuPDFEngine) Validate(data []byte) (int, error) {
	if err := api.Validate(bytes.NewReader(data), e.conf); err != nil {
		return 0, fmt.Errorf("validate pdf: %w", err)
	}
	n, err := api.PageCount(bytes.NewReader(data), e.conf)
	if err != nil {
		return 0, fmt.Errorf("pdf page count: %w", err)
	}
	return n, nil
}

// Open implements Engine.
func (e *MuPDFEngine) Open(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	validPages, verr := e.validate(data)
	if verr != nil {
		log.Warn().Err(verr).Msg("pdfcpu rejected payload; trying mupdf")
	}

	raster, err := fitz.NewFromMemory(data)
	if err != nil {
		if verr != nil {
			return nil, fmt.Errorf("open pdf: %w (%v)", err, verr)
		}
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	pages := raster.NumPage()
	if pages <= 0 {
		raster.Close()
		return nil, ErrEmptyDocument
	}
	if verr == nil && validPages != pages {
		log.Warn().Int("pdfcpu_pages", validPages).Int("mupdf_pages", pages).Msg("page count mismatch; using mupdf")
	}

	text, err := e.openText(data)
	if err != nil {
		log.Warn().Err(err).Msg("positioned text unavailable; falling back to mupdf plain text")
		text = nil
	}
	return &muDocument{raster: raster, text: text, pages: pages}, nil
}

type muDocument struct {
	raster *fitz.Document
	pages  int

	// ledongthuc readers are not safe for concurrent use; nil when the text
	// layer could not be parsed
	textMu sync.Mutex
	text   *lpdf.Reader

	closeOnce sync.Once
	closeErr  error
}

func (d *muDocument) NumPages() int { return d.pages }

func (d *muDocument) Page(ctx context.Context, number int) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if number < 1 || number > d.pages {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", number, d.pages)
	}
	bound, err := d.raster.Bound(number - 1)
	if err != nil {
		return nil, fmt.Errorf("page %d bounds: %w", number, err)
	}
	return &muPage{doc: d, number: number, width: float64(bound.Dx()), height: float64(bound.Dy())}, nil
}

func (d *muDocument) Close() error {
	d.closeOnce.Do(func() { d.closeErr = d.raster.Close() })
	return d.closeErr
}

// extract reads the glyphs of one page. Malformed content streams make the
// text engine panic, so that is turned into an error.
func (d *muDocument) extract(number int) (glyphs []lpdf.Text, err error) {
	d.textMu.Lock()
	defer d.textMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("text page %d: %v", number, r)
		}
	}()
	p := d.text.Page(number)
	if p.V.IsNull() {
		return nil, fmt.Errorf("text page %d: not found", number)
	}
	return p.Content().Text, nil
}

type muPage struct {
	doc    *muDocument
	number int
	width  float64 // points
	height float64
}

func (p *muPage) Number() int { return p.number }

func (p *muPage) Viewport(scale float64) Viewport {
	return Viewport{Width: p.width * scale, Height: p.height * scale, Scale: scale}
}

func (p *muPage) Render(ctx context.Context, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := p.doc.raster.ImageDPI(p.number-1, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", p.number, err)
	}
	log.Debug().Int("page", p.number).Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).Float64("scale", scale).Msg("rendered page")
	return img, nil
}

func (p *muPage) TextContent(ctx context.Context) (TextContent, error) {
	if err := ctx.Err(); err != nil {
		return TextContent{}, err
	}
	if p.doc.text == nil {
		return p.plainText()
	}
	glyphs, err := p.doc.extract(p.number)
	if err != nil {
		return TextContent{}, err
	}
	return TextContent{Items: BuildFragments(glyphs)}, nil
}

// plainText returns one unpositioned fragment per line. Such fragments can be
// searched but have no box to highlight.
func (p *muPage) plainText() (TextContent, error) {
	s, err := p.doc.raster.Text(p.number - 1)
	if err != nil {
		return TextContent{}, fmt.Errorf("text page %d: %w", p.number, err)
	}
	var items []Fragment
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			items = append(items, Fragment{Str: line})
		}
	}
	return TextContent{Items: items}, nil
}
