package pdfdoc

import (
	"math"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
)

// ledongthuc/pdf reports one Text per shown glyph. Glyphs that sit on the same
// baseline in the same font and follow each other closely are folded back into a
// single fragment, which is roughly what a show-text operator produced.
const (
	baselineTolerance = 0.2  // fraction of font size
	wordGapRatio      = 0.15 // gap above this inserts a space
	breakGapRatio     = 1.0  // gap above this starts a new fragment
	overlapRatio      = 0.5  // glyph may start this far before the previous end
)

type run struct {
	sb       strings.Builder
	font     string
	fontSize float64
	x, y     float64
	end      float64
}

func newRun(g lpdf.Text) *run {
	r := &run{font: g.Font, fontSize: g.FontSize, x: g.X, y: g.Y, end: g.X + g.W}
	r.sb.WriteString(g.S)
	return r
}

func (r *run) accepts(g lpdf.Text) bool {
	if g.Font != r.font || math.Abs(g.FontSize-r.fontSize) > 0.01 {
		return false
	}
	size := math.Max(r.fontSize, 1)
	if math.Abs(g.Y-r.y) > size*baselineTolerance {
		return false
	}
	gap := g.X - r.end
	return gap > -size*overlapRatio && gap < size*breakGapRatio
}

func (r *run) add(g lpdf.Text) {
	gap := g.X - r.end
	if gap > math.Max(r.fontSize, 1)*wordGapRatio && g.S != " " && !strings.HasSuffix(r.sb.String(), " ") {
		r.sb.WriteByte(' ')
	}
	r.sb.WriteString(g.S)
	if e := g.X + g.W; e > r.end {
		r.end = e
	}
}

func (r *run) fragment() Fragment {
	return Fragment{
		Str:       r.sb.String(),
		Transform: [6]float64{r.fontSize, 0, 0, r.fontSize, r.x, r.y},
		Width:     r.end - r.x,
		Height:    r.fontSize,
		Font:      r.font,
	}
}

// BuildFragments groups glyph runs into fragments, preserving content order.
func BuildFragments(glyphs []lpdf.Text) []Fragment {
	var (
		out []Fragment
		cur *run
	)
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if cur != nil && cur.accepts(g) {
			cur.add(g)
			continue
		}
		if cur != nil {
			out = append(out, cur.fragment())
		}
		cur = newRun(g)
	}
	if cur != nil {
		out = append(out, cur.fragment())
	}
	return out
}
