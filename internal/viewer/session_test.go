package viewer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfseek/internal/filetype"
	"github.com/local/pdfseek/internal/metrics"
	"github.com/local/pdfseek/internal/pdfdoc"
	"github.com/local/pdfseek/internal/pdfdoc/pdfdoctest"
	"github.com/local/pdfseek/internal/speech"
	"github.com/local/pdfseek/internal/storage"
	"github.com/local/pdfseek/internal/store"
)

const testSessionID = "3f1c1d8e-4a55-4c1e-9d1b-2b7a3f0e9c11"

var (
	pdfA = []byte("%PDF-1.4\n% document a\n")
	pdfB = []byte("%PDF-1.4\n% document b\n")
)

type fixture struct {
	engine   *pdfdoctest.Engine
	sources  *storage.Local
	sessions *store.MemorySessions
	deps     Dependencies
	session  *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	metrics.Init()
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	f := &fixture{
		engine:   pdfdoctest.NewEngine(),
		sources:  local,
		sessions: store.NewMemorySessions(10),
	}
	f.deps = Dependencies{
		Engine:   f.engine,
		Detector: filetype.New(),
		Sources:  f.sources,
		Sessions: f.sessions,
	}
	f.session = newSession(testSessionID, f.deps, Options{Scale: 1.5})
	return f
}

// threePageDoc has "hello world" on page 2 only.
func threePageDoc() *pdfdoctest.Document {
	return pdfdoctest.NewDocument(
		pdfdoctest.Text("Introduction", "nothing to see"),
		pdfdoctest.Page{Fragments: []pdfdoc.Fragment{
			pdfdoctest.Fragment("Greeting:", 72, 720, 50, 12),
			pdfdoctest.Fragment("hello world", 100, 700, 60, 12),
		}},
		pdfdoctest.Text("Appendix"),
	)
}

func loadDoc(t *testing.T, f *fixture, payload []byte, doc *pdfdoctest.Document) {
	t.Helper()
	f.engine.RegisterDocument(payload, doc)
	_, err := f.session.Load(context.Background(), "doc.pdf", payload, "application/pdf")
	require.NoError(t, err)
}

func messages(res Result) []string {
	out := make([]string, 0, len(res.Notices))
	for _, n := range res.Notices {
		out = append(out, n.Message)
	}
	return out
}

func TestLoadRendersFirstPage(t *testing.T) {
	f := newFixture(t)
	doc := threePageDoc()
	loadDoc(t, f, pdfA, doc)

	surf := f.session.Surface()
	require.NotNil(t, surf)
	assert.Equal(t, 1, surf.Page())
	assert.False(t, surf.Highlighted())
	assert.Equal(t, 918, surf.Width())
	assert.Equal(t, 1188, surf.Height())
	assert.Equal(t, []int{1}, doc.Rendered())

	st := f.session.State(context.Background())
	assert.Equal(t, 3, st.Pages)
	assert.Equal(t, "doc.pdf", st.Document)
	assert.True(t, st.HasSource)
	assert.Empty(t, st.Keyword)

	m, ok, err := f.sessions.GetMeta(context.Background(), testSessionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, m.Pages)
	assert.NotEmpty(t, m.StorageKey)
}

func TestLoadRejectsNonPDF(t *testing.T) {
	f := newFixture(t)
	doc := threePageDoc()
	loadDoc(t, f, pdfA, doc)

	res, err := f.session.Load(context.Background(), "notes.txt", []byte("just some text"), "application/pdf")
	require.ErrorIs(t, err, filetype.ErrNotPDF)
	assert.Equal(t, []string{"Please upload a valid PDF file."}, messages(res))

	assert.False(t, doc.Closed())
	assert.Equal(t, 3, f.session.State(context.Background()).Pages)
	assert.Equal(t, "doc.pdf", f.session.State(context.Background()).Document)
}

func TestLoadEngineFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	doc := threePageDoc()
	loadDoc(t, f, pdfA, doc)

	res, err := f.session.Load(context.Background(), "broken.pdf", []byte("%PDF-1.7\ngarbage"), "application/pdf")
	require.Error(t, err)
	assert.Empty(t, res.Notices)
	assert.False(t, doc.Closed())
	assert.Equal(t, 3, f.session.State(context.Background()).Pages)
}

func TestLoadReplacesAndClosesPrevious(t *testing.T) {
	f := newFixture(t)
	first := threePageDoc()
	loadDoc(t, f, pdfA, first)
	m, _, err := f.sessions.GetMeta(context.Background(), testSessionID)
	require.NoError(t, err)
	firstKey := m.StorageKey

	second := pdfdoctest.NewDocument(pdfdoctest.Text("only page"))
	loadDoc(t, f, pdfB, second)

	_, err = f.sources.Get(context.Background(), firstKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.True(t, first.Closed())
	assert.False(t, second.Closed())
	assert.Equal(t, 1, f.session.State(context.Background()).Pages)
}

func TestLoadWarnsWithoutText(t *testing.T) {
	f := newFixture(t)
	f.engine.Register(pdfA, pdfdoctest.Page{}, pdfdoctest.Page{})

	res, err := f.session.Load(context.Background(), "scan.pdf", pdfA, "")
	require.NoError(t, err)
	assert.Equal(t, []string{noticeNoText.Message}, messages(res))
}

func TestSearchFindsFirstMatchingPage(t *testing.T) {
	f := newFixture(t)
	doc := threePageDoc()
	loadDoc(t, f, pdfA, doc)
	calls := doc.TextCalls()

	res, err := f.session.Search(context.Background(), "hello", SourceText)
	require.NoError(t, err)
	assert.Equal(t, []string{"Keyword found on page 2"}, messages(res))
	assert.True(t, res.Found)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, `Searched Keyword: "hello"`, res.Display)

	surf := f.session.Surface()
	require.NotNil(t, surf)
	assert.Equal(t, 2, surf.Page())
	// x=100*1.5, y=1188-700*1.5-12*1.5, w=60*1.5, h=12*1.5
	assert.Equal(t, []image.Rectangle{image.Rect(150, 120, 240, 138)}, surf.Highlights())
	assert.Equal(t, []int{1, 2}, doc.Rendered())
	// every page is extracted once, even after a match is known
	assert.Equal(t, calls+3, doc.TextCalls())
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	loadDoc(t, f, pdfA, threePageDoc())

	res, err := f.session.Search(context.Background(), "  HELLO World ", SourceText)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, "HELLO World", res.Keyword)
}

func TestSearchEmptyKeywordMatchesFirstPage(t *testing.T) {
	f := newFixture(t)
	loadDoc(t, f, pdfA, threePageDoc())

	res, err := f.session.Search(context.Background(), "   ", SourceText)
	require.NoError(t, err)
	assert.Equal(t, []string{"Keyword found on page 1"}, messages(res))
	assert.Equal(t, `Searched Keyword: ""`, res.Display)
	assert.Equal(t, 1, f.session.Surface().Page())
}

func TestSearchAcrossFragmentBoundary(t *testing.T) {
	f := newFixture(t)
	doc := pdfdoctest.NewDocument(pdfdoctest.Text("hello", "world"))
	loadDoc(t, f, pdfA, doc)

	res, err := f.session.Search(context.Background(), "hello world", SourceText)
	require.NoError(t, err)
	assert.True(t, res.Found)
	// no single fragment contains the keyword, so nothing is painted
	assert.False(t, f.session.Surface().Highlighted())
}

func TestSearchNotFoundKeepsSurface(t *testing.T) {
	f := newFixture(t)
	doc := threePageDoc()
	loadDoc(t, f, pdfA, doc)
	before := f.session.Surface()

	res, err := f.session.Search(context.Background(), "zebra", SourceText)
	require.NoError(t, err)
	assert.Equal(t, []string{"Keyword not found."}, messages(res))
	assert.False(t, res.Found)
	assert.Same(t, before, f.session.Surface())
	assert.Equal(t, []int{1}, doc.Rendered())
	assert.Equal(t, `Searched Keyword: "zebra"`, f.session.State(context.Background()).Display)
}

func TestSearchWithoutDocument(t *testing.T) {
	f := newFixture(t)

	res, err := f.session.Search(context.Background(), "hello", SourceText)
	require.ErrorIs(t, err, ErrNoDocument)
	assert.Zero(t, f.engine.Opens())
	assert.Equal(t, []string{"Please load a PDF file first."}, messages(res))
	assert.Empty(t, f.session.State(context.Background()).Display)
}

func TestSearchLowestPageWinsRegardlessOfCompletion(t *testing.T) {
	f := newFixture(t)
	slow := pdfdoctest.Text("target here")
	slow.TextDelay = 60 * time.Millisecond
	doc := pdfdoctest.NewDocument(
		pdfdoctest.Text("cover"),
		slow,
		pdfdoctest.Text("another target"),
	)
	loadDoc(t, f, pdfA, doc)

	res, err := f.session.Search(context.Background(), "target", SourceText)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Page)

	done := doc.Completed()
	require.NotEmpty(t, done)
	assert.Equal(t, 2, done[len(done)-1])
}

func TestSearchExtractionErrorAborts(t *testing.T) {
	f := newFixture(t)
	bad := pdfdoctest.Text("unreadable")
	bad.TextErr = errors.New("broken content stream")
	doc := pdfdoctest.NewDocument(pdfdoctest.Text("hello"), bad)
	loadDoc(t, f, pdfA, doc)
	before := f.session.Surface()

	res, err := f.session.Search(context.Background(), "hello", SourceText)
	require.Error(t, err)
	assert.Equal(t, []string{"Error searching through PDF."}, messages(res))
	assert.False(t, res.Found)
	assert.Same(t, before, f.session.Surface())
	assert.False(t, f.session.Surface().Highlighted())
}

func TestSearchTimeout(t *testing.T) {
	f := newFixture(t)
	f.session.opts.SearchTimeout = 10 * time.Millisecond
	slow := pdfdoctest.Text("slow")
	slow.TextDelay = time.Second
	f.engine.Register(pdfA, pdfdoctest.Text("fast"), slow)
	// the probe stops at the first page with text, so loading stays quick
	_, err := f.session.Load(context.Background(), "doc.pdf", pdfA, "")
	require.NoError(t, err)

	res, err := f.session.Search(context.Background(), "slow", SourceText)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"Error searching through PDF."}, messages(res))
}

func TestSearchRecordsHistory(t *testing.T) {
	f := newFixture(t)
	loadDoc(t, f, pdfA, threePageDoc())

	_, err := f.session.Search(context.Background(), "hello", SourceText)
	require.NoError(t, err)
	_, err = f.session.Search(context.Background(), "zebra", SourceVoice)
	require.NoError(t, err)

	h, err := f.sessions.History(context.Background(), testSessionID, 0)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "zebra", h[0].Keyword)
	assert.Equal(t, SourceVoice, h[0].Source)
	assert.False(t, h[0].Found)
	assert.Equal(t, 2, h[1].Page)

	m, _, err := f.sessions.GetMeta(context.Background(), testSessionID)
	require.NoError(t, err)
	assert.Equal(t, "zebra", m.LastKeyword)
}

func TestRenderPage(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.RenderPage(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoDocument)

	doc := threePageDoc()
	loadDoc(t, f, pdfA, doc)
	res, err := f.session.RenderPage(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Page)
	assert.Equal(t, 3, f.session.Surface().Page())

	_, err = f.session.RenderPage(context.Background(), 9)
	require.Error(t, err)
	assert.Equal(t, 3, f.session.Surface().Page())
}

func TestShowWithoutUpload(t *testing.T) {
	f := newFixture(t)
	res, err := f.session.Show(context.Background())
	require.ErrorIs(t, err, ErrNoSource)
	assert.Equal(t, []string{"Please upload a PDF file first."}, messages(res))
}

func TestShowReloadsRetainedSource(t *testing.T) {
	f := newFixture(t)
	loadDoc(t, f, pdfA, threePageDoc())
	_, err := f.session.Search(context.Background(), "hello", SourceText)
	require.NoError(t, err)

	f.engine.Register(pdfA, pdfdoctest.Text("fresh"))
	_, err = f.session.Show(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.session.Surface().Page())
	assert.False(t, f.session.Surface().Highlighted())
	assert.Equal(t, 2, f.engine.Opens())
}

func TestShowResumesFromStorage(t *testing.T) {
	f := newFixture(t)
	loadDoc(t, f, pdfA, threePageDoc())
	m, ok, err := f.sessions.GetMeta(context.Background(), testSessionID)
	require.NoError(t, err)
	require.True(t, ok)

	resumed := newSession(testSessionID, f.deps, Options{Scale: 1.5})
	resumed.restore(m)
	f.engine.Register(pdfA, pdfdoctest.Text("again"))

	_, err = resumed.Show(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resumed.State(context.Background()).Pages)
}

func TestVoice(t *testing.T) {
	f := newFixture(t)
	loadDoc(t, f, pdfA, threePageDoc())

	res, err := f.session.Voice(context.Background(), speech.Event{Error: speech.CodeNotSupported})
	require.Error(t, err)
	assert.Equal(t, []string{"Your browser does not support speech recognition."}, messages(res))

	res, err = f.session.Voice(context.Background(), speech.Event{Error: "no-speech"})
	require.Error(t, err)
	assert.Equal(t, []string{"Error occurred in recognition: no-speech"}, messages(res))

	res, err = f.session.Voice(context.Background(), speech.Event{
		Results: [][]speech.Alternative{{{Transcript: " Hello ", Confidence: 0.9}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Keyword found on page 2"}, messages(res))
	assert.Equal(t, "Hello", res.Keyword)

	h, err := f.sessions.History(context.Background(), testSessionID, 1)
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, SourceVoice, h[0].Source)
}

func TestWriteSurface(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	require.ErrorIs(t, f.session.WriteSurface(&buf), ErrNoDocument)

	loadDoc(t, f, pdfA, threePageDoc())
	require.NoError(t, f.session.WriteSurface(&buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(918, 1188), img.Bounds().Size())
}

func TestCloseReleasesDocument(t *testing.T) {
	f := newFixture(t)
	doc := threePageDoc()
	loadDoc(t, f, pdfA, doc)

	f.session.Close()
	assert.True(t, doc.Closed())
	assert.Nil(t, f.session.Surface())
}

// hookedStore runs onDelete once, inside the first Delete call. Load deletes
// the replaced upload right after installing the new document, so the hook
// runs in the middle of a load.
type hookedStore struct {
	storage.Store
	fired    atomic.Bool
	onDelete func()
}

func (h *hookedStore) Delete(ctx context.Context, key string) error {
	if !h.fired.Swap(true) {
		h.onDelete()
	}
	return h.Store.Delete(ctx, key)
}

func TestOverlappingLoadsNeverUseClosedDocument(t *testing.T) {
	f := newFixture(t)
	pdfC := []byte("%PDF-1.4\n% document c\n")
	docA, docB := threePageDoc(), threePageDoc()
	docC := pdfdoctest.NewDocument(pdfdoctest.Text("third"))
	f.engine.RegisterDocument(pdfA, docA)
	f.engine.RegisterDocument(pdfB, docB)
	f.engine.RegisterDocument(pdfC, docC)

	hooked := &hookedStore{Store: f.sources}
	sess := newSession(testSessionID, Dependencies{
		Engine:   f.engine,
		Detector: filetype.New(),
		Sources:  hooked,
		Sessions: f.sessions,
	}, Options{Scale: 1.5})
	hooked.onDelete = func() {
		_, err := sess.Load(context.Background(), "c.pdf", pdfC, "")
		assert.NoError(t, err)
	}

	_, err := sess.Load(context.Background(), "a.pdf", pdfA, "")
	require.NoError(t, err)
	_, err = sess.Load(context.Background(), "b.pdf", pdfB, "")
	require.NoError(t, err)

	assert.Zero(t, docB.UsedAfterClose())
	assert.Equal(t, 1, docB.RenderCalls())
	assert.True(t, docA.Closed())
	assert.True(t, docB.Closed())
	assert.False(t, docC.Closed())
	assert.Equal(t, 1, sess.State(context.Background()).Pages)
}
