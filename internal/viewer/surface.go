package viewer

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"github.com/local/pdfseek/internal/pdfdoc"
)

// Surface is one rendered page raster plus whatever was painted over it.
// A session replaces its surface wholesale; surfaces are never reused.
type Surface struct {
	page       int
	viewport   pdfdoc.Viewport
	img        *image.NRGBA
	highlights []image.Rectangle
}

func newSurface(page int, vp pdfdoc.Viewport, raster image.Image) *Surface {
	return &Surface{page: page, viewport: vp, img: imaging.Clone(raster)}
}

func (s *Surface) Page() int { return s.page }
func (s *Surface) Viewport() pdfdoc.Viewport { return s.viewport }
func (s *Surface) Image() image.Image { return s.img }
func (s *Surface) Width() int { return s.img.Bounds().Dx() }
func (s *Surface) Height() int { return s.img.Bounds().Dy() }
func (s *Surface) Highlighted() bool { return len(s.highlights) > 0 }
func (s *Surface) Highlights() []image.Rectangle { return append([]image.Rectangle(nil), s.highlights...) }

// EncodePNG writes the surface as PNG.
func (s *Surface) EncodePNG(w io.Writer) error {
	if err := imaging.Encode(w, s.img, imaging.PNG); err != nil {
		return fmt.Errorf("encode surface: %w", err)
	}
	return nil
}
