package viewer

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDocument is returned by operations that need a loaded document.
	ErrNoDocument = errors.New("no document loaded")
	// ErrNoSource is returned by Show when nothing was ever uploaded.
	ErrNoSource = errors.New("no pdf uploaded")
	// ErrSearchFailed wraps text extraction failures during a search.
	ErrSearchFailed = errors.New("search failed")
)

// Level tells the page how to present a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a user-facing message; the page shows each one as an alert.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

func info(msg string) Notice  { return Notice{Level: LevelInfo, Message: msg} }
func failed(msg string) Notice { return Notice{Level: LevelError, Message: msg} }

var (
	noticeInvalidPDF   = failed("Please upload a valid PDF file.")
	noticeUploadFirst  = failed("Please upload a PDF file first.")
	noticeLoadFirst    = failed("Please load a PDF file first.")
	noticeNotFound     = info("Keyword not found.")
	noticeSearchFailed = failed("Error searching through PDF.")
	noticeUnsupported  = failed("Your browser does not support speech recognition.")
	noticeNoText       = info("This PDF has no extractable text, so keyword search will not find anything.")
)

func noticeFound(page int) Notice { return info(fmt.Sprintf("Keyword found on page %d", page)) }

func noticeRecognition(code string) Notice {
	return failed("Error occurred in recognition: " + code)
}

// KeywordDisplay is the text shown for the last searched keyword.
func KeywordDisplay(keyword string) string {
	return fmt.Sprintf("Searched Keyword: %q", keyword)
}
