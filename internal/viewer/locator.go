package viewer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/local/pdfseek/internal/pdfdoc"
)

// PageMatch is the per-page outcome of a scan. Page and Text are only kept
// for the page that matched, since they are needed again for highlighting.
type PageMatch struct {
	Number int
	Found  bool
	Page   pdfdoc.Page
	Text   pdfdoc.TextContent
}

// Locate extracts every page concurrently, waits for all of them, and returns
// the lowest-numbered page whose space-joined text contains keyword. keyword is
// folded here. A nil match with nil error means no page matched. Any extraction
// error aborts the scan; no partial result is returned.
func Locate(ctx context.Context, doc pdfdoc.Document, keyword string) (*PageMatch, error) {
	needle := Fold(keyword)
	n := doc.NumPages()
	results := make([]PageMatch, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			number := i + 1
			page, err := doc.Page(gctx, number)
			if err != nil {
				return fmt.Errorf("get page %d: %w", number, err)
			}
			tc, err := page.TextContent(gctx)
			if err != nil {
				return fmt.Errorf("text content page %d: %w", number, err)
			}
			res := PageMatch{Number: number}
			if strings.Contains(Fold(tc.Joined()), needle) {
				res.Found = true
				res.Page = page
				res.Text = tc
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range results {
		if results[i].Found {
			return &results[i], nil
		}
	}
	return nil, nil
}
