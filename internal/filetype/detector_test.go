package filetype

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var minimalPDFHeader = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

func TestDetectBytes(t *testing.T) {
	d := New()

	tests := []struct {
		name      string
		data      []byte
		declared  string
		supported bool
	}{
		{name: "pdf", data: minimalPDFHeader, declared: "application/pdf", supported: true},
		{name: "pdf with wrong declared type", data: minimalPDFHeader, declared: "application/octet-stream", supported: true},
		{name: "plain text claiming pdf", data: []byte("hello world, not a pdf"), declared: "application/pdf", supported: false},
		{name: "png", data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), declared: "image/png", supported: false},
		{name: "empty", data: nil, supported: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := d.DetectBytes(tt.data, tt.declared)
			assert.Equal(t, tt.supported, info.Supported)
			assert.Equal(t, tt.declared, info.Declared)
		})
	}
}

func TestRequirePDF(t *testing.T) {
	d := New()
	require.NoError(t, d.RequirePDF(minimalPDFHeader, ""))

	err := d.RequirePDF([]byte("GIF89a"), "image/gif")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotPDF))
}

func TestRejectionNamesDetectedType(t *testing.T) {
	d := New()

	err := d.RequirePDF([]byte("just some notes"), "application/pdf")
	require.ErrorIs(t, err, ErrNotPDF)
	assert.Contains(t, err.Error(), "Plain text file")

	err = d.RequirePDF([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), "")
	require.ErrorIs(t, err, ErrNotPDF)
	assert.Contains(t, err.Error(), "Image file")

	info := d.DetectBytes(minimalPDFHeader, "")
	assert.Equal(t, ".pdf", info.Extension)
	assert.Equal(t, "PDF document", info.Description)
}
