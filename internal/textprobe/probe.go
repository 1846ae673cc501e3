// Package textprobe checks whether a document has any text a keyword search
// could match, by sampling a few pages.
package textprobe

import (
	"context"
	"math/rand"
	"regexp"
	"sort"
	"time"

	"github.com/local/pdfseek/internal/pdfdoc"
)

// PageProbe captures the result of probing a single page (1-based).
type PageProbe struct {
	Page      int    `json:"page"`
	CharCount int    `json:"char_count"`
	Err       string `json:"err,omitempty"`
}

// Diagnostics describes one probe run.
type Diagnostics struct {
	TotalPages         int           `json:"total_pages"`
	SampledPages       []int         `json:"sampled_pages"`
	TotalCharsInSample int           `json:"total_chars_in_sample"`
	Threshold          int           `json:"threshold"`
	Probes             []PageProbe   `json:"probes"`
	HasExtractableText bool          `json:"has_extractable_text"`
	Duration           time.Duration `json:"duration"`
}

// DefaultThreshold is used when a non-positive threshold is passed in.
const DefaultThreshold = 1

var whitespace = regexp.MustCompile(`\s+`)

// Probe samples pages of doc and counts non-whitespace characters until
// threshold is reached. pages overrides the sample (1-based); nil uses the
// default heuristic. Page errors are recorded, not returned.
func Probe(ctx context.Context, doc pdfdoc.Document, threshold int, pages []int) (*Diagnostics, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	start := time.Now()
	total := doc.NumPages()

	sample := pages
	if sample == nil {
		sample = samplePages(total, rand.New(rand.NewSource(time.Now().UnixNano())))
	} else {
		sample = normalizePages(sample, total)
	}

	diag := &Diagnostics{TotalPages: total, SampledPages: sample, Threshold: threshold}
	for _, n := range sample {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		probe := PageProbe{Page: n}
		count, err := countChars(ctx, doc, n)
		if err != nil {
			probe.Err = err.Error()
		}
		probe.CharCount = count
		diag.TotalCharsInSample += count
		diag.Probes = append(diag.Probes, probe)
		if diag.TotalCharsInSample >= threshold {
			break
		}
	}
	diag.HasExtractableText = diag.TotalCharsInSample >= threshold
	diag.Duration = time.Since(start)
	return diag, nil
}

func countChars(ctx context.Context, doc pdfdoc.Document, n int) (int, error) {
	p, err := doc.Page(ctx, n)
	if err != nil {
		return 0, err
	}
	tc, err := p.TextContent(ctx)
	if err != nil {
		return 0, err
	}
	return len([]rune(whitespace.ReplaceAllString(tc.Joined(), ""))), nil
}

// samplePages picks all pages for short documents, otherwise first, middle,
// last and two distinct random pages.
func samplePages(total int, rnd *rand.Rand) []int {
	if total <= 0 {
		return []int{}
	}
	if total <= 5 {
		out := make([]int, total)
		for i := range out {
			out[i] = i + 1
		}
		return out
	}
	picked := map[int]struct{}{1: {}, (total + 1) / 2: {}, total: {}}
	for len(picked) < 5 {
		picked[rnd.Intn(total)+1] = struct{}{}
	}
	out := make([]int, 0, len(picked))
	for p := range picked {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// normalizePages drops out-of-range and duplicate pages and sorts the rest.
func normalizePages(pages []int, total int) []int {
	seen := make(map[int]struct{}, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if p < 1 || p > total {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
