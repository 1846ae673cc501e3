package speech

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript(t *testing.T) {
	ev, err := Decode(strings.NewReader(`{"results":[[{"transcript":"  Hello There ","confidence":0.91},{"transcript":"yellow there"}]]}`))
	require.NoError(t, err)

	kw, err := ev.Transcript()
	require.NoError(t, err)
	assert.Equal(t, "Hello There", kw)
}

func TestTranscriptErrors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		code        string
		unsupported bool
	}{
		{name: "recognizer error", body: `{"error":"no-speech"}`, code: "no-speech"},
		{name: "unsupported", body: `{"error":"not-supported"}`, code: CodeNotSupported, unsupported: true},
		{name: "no results", body: `{"results":[]}`, code: CodeNoMatch},
		{name: "empty alternatives", body: `{"results":[[]]}`, code: CodeNoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(strings.NewReader(tt.body))
			require.NoError(t, err)

			_, err = ev.Transcript()
			var rerr *RecognitionError
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, tt.code, rerr.Code)
			assert.Equal(t, tt.unsupported, rerr.Unsupported())
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode(strings.NewReader("{"))
	assert.Error(t, err)
}

func TestRecognitionErrorMessage(t *testing.T) {
	assert.Equal(t, "speech recognition network", (&RecognitionError{Code: "network"}).Error())
	assert.Equal(t, "speech recognition aborted: user", (&RecognitionError{Code: "aborted", Message: "user"}).Error())
}
