// Package speech decodes recognition events forwarded by the browser.
package speech

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Error codes reported by the recognizer that get special treatment.
const (
	CodeNotSupported = "not-supported"
	CodeNoMatch      = "no-match"
)

// Alternative is one recognition hypothesis.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Event is what the page posts after the recognizer fires onresult or onerror.
type Event struct {
	Results [][]Alternative `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Lang    string          `json:"lang,omitempty"`
}

// RecognitionError carries the recognizer's error code.
type RecognitionError struct {
	Code    string
	Message string
}

func (e *RecognitionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("speech recognition %s: %s", e.Code, e.Message)
	}
	return "speech recognition " + e.Code
}

// Unsupported reports whether the browser lacks a recognizer.
func (e *RecognitionError) Unsupported() bool { return e.Code == CodeNotSupported }

// Decode reads one Event.
func Decode(r io.Reader) (Event, error) {
	var ev Event
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return Event{}, fmt.Errorf("decode speech event: %w", err)
	}
	return ev, nil
}

// Transcript returns the trimmed top alternative of the first result.
// Error events and empty result sets come back as *RecognitionError.
func (ev Event) Transcript() (string, error) {
	if ev.Error != "" {
		return "", &RecognitionError{Code: ev.Error, Message: ev.Message}
	}
	if len(ev.Results) == 0 || len(ev.Results[0]) == 0 {
		return "", &RecognitionError{Code: CodeNoMatch}
	}
	return strings.TrimSpace(ev.Results[0][0].Transcript), nil
}
