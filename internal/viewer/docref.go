package viewer

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfseek/internal/pdfdoc"
)

// docRef counts in-flight users of a document so that replacing it does not
// close it under a running search.
type docRef struct {
	doc pdfdoc.Document

	mu      sync.Mutex
	refs    int
	retired bool
	closed  bool
}

func newDocRef(doc pdfdoc.Document) *docRef { return &docRef{doc: doc} }

func (r *docRef) acquire() {
	r.mu.Lock()
	r.refs++
	r.mu.Unlock()
}

func (r *docRef) release() {
	r.mu.Lock()
	r.refs--
	closeNow := r.retired && r.refs == 0 && !r.closed
	if closeNow {
		r.closed = true
	}
	r.mu.Unlock()
	if closeNow {
		r.close()
	}
}

// retire marks the document replaced; it closes once the last user releases it.
func (r *docRef) retire() {
	r.mu.Lock()
	r.retired = true
	closeNow := r.refs == 0 && !r.closed
	if closeNow {
		r.closed = true
	}
	r.mu.Unlock()
	if closeNow {
		r.close()
	}
}

func (r *docRef) close() {
	if err := r.doc.Close(); err != nil {
		log.Warn().Err(err).Msg("closing replaced document")
	}
}
