package viewer

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/local/pdfseek/internal/pdfdoc"
)

// highlightOpacity matches rgba(255, 0, 0, 0.3).
const highlightOpacity = 0.3

var highlightColor = color.NRGBA{R: 255, A: 255}

// Fold is the case folding applied to both keyword and page text.
func Fold(s string) string { return strings.ToLower(s) }

// Highlight tints every fragment whose folded text contains keyword, which
// must already be folded. Boxes cover the whole fragment, not the matched
// characters, and are placed from the fragment origin with the y axis flipped.
func Highlight(s *Surface, tc pdfdoc.TextContent, keyword string) {
	scale := s.viewport.Scale
	if scale == 0 {
		scale = 1
	}
	height := float64(s.Height())
	bounds := s.img.Bounds()

	var boxes []image.Rectangle
	for _, it := range tc.Items {
		if !strings.Contains(Fold(it.Str), keyword) {
			continue
		}
		x, y := it.Origin()
		left := x * scale
		bottom := height - y*scale
		r := image.Rect(
			int(math.Round(left)),
			int(math.Round(bottom-it.Height*scale)),
			int(math.Round(left+it.Width*scale)),
			int(math.Round(bottom)),
		).Intersect(bounds)
		if r.Empty() {
			continue
		}
		boxes = append(boxes, r)
	}
	if len(boxes) == 0 {
		return
	}

	// paint opaque boxes on a clear layer, then blend the layer once
	layer := imaging.New(bounds.Dx(), bounds.Dy(), color.NRGBA{})
	for _, r := range boxes {
		draw.Draw(layer, r, image.NewUniform(highlightColor), image.Point{}, draw.Src)
	}
	s.img = imaging.Overlay(s.img, layer, image.Point{}, highlightOpacity)
	s.highlights = append(s.highlights, boxes...)
}
