package pdfdoc

import (
	"testing"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// glyphs lays out s as consecutive 6pt-wide glyphs at (x, y).
func glyphs(s string, x, y float64) []lpdf.Text {
	out := make([]lpdf.Text, 0, len(s))
	for _, r := range s {
		out = append(out, lpdf.Text{Font: "Helvetica", FontSize: 12, X: x, Y: y, W: 6, S: string(r)})
		x += 6
	}
	return out
}

func TestBuildFragmentsMergesGlyphRun(t *testing.T) {
	frags := BuildFragments(glyphs("hello world", 72, 700))
	require.Len(t, frags, 1)

	f := frags[0]
	assert.Equal(t, "hello world", f.Str)
	x, y := f.Origin()
	assert.Equal(t, 72.0, x)
	assert.Equal(t, 700.0, y)
	assert.Equal(t, 66.0, f.Width)
	assert.Equal(t, 12.0, f.Height)
	assert.Equal(t, [6]float64{12, 0, 0, 12, 72, 700}, f.Transform)
}

func TestBuildFragmentsSplitsLines(t *testing.T) {
	in := append(glyphs("first", 72, 700), glyphs("second", 72, 680)...)
	frags := BuildFragments(in)
	require.Len(t, frags, 2)
	assert.Equal(t, "first", frags[0].Str)
	assert.Equal(t, "second", frags[1].Str)
}

func TestBuildFragmentsInsertsWordSpace(t *testing.T) {
	// 4pt gap with no space glyph between words
	in := append(glyphs("ab", 72, 700), glyphs("cd", 72+12+4, 700)...)
	frags := BuildFragments(in)
	require.Len(t, frags, 1)
	assert.Equal(t, "ab cd", frags[0].Str)
}

func TestBuildFragmentsSplitsOnWideGap(t *testing.T) {
	in := append(glyphs("left", 72, 700), glyphs("right", 300, 700)...)
	frags := BuildFragments(in)
	require.Len(t, frags, 2)
	assert.Equal(t, "left", frags[0].Str)
	assert.Equal(t, "right", frags[1].Str)
}

func TestBuildFragmentsSplitsOnFontChange(t *testing.T) {
	in := glyphs("ab", 72, 700)
	in[1].Font = "Helvetica-Bold"
	frags := BuildFragments(in)
	require.Len(t, frags, 2)
}

func TestBuildFragmentsSkipsEmpty(t *testing.T) {
	assert.Empty(t, BuildFragments(nil))
	assert.Empty(t, BuildFragments([]lpdf.Text{{S: ""}}))
}

func TestTextContentJoined(t *testing.T) {
	tc := TextContent{Items: []Fragment{{Str: "Hello"}, {Str: "World"}}}
	assert.Equal(t, "Hello World", tc.Joined())
	assert.Equal(t, "", TextContent{}.Joined())
}
