package filetype

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// PDFMIME is the only type the viewer accepts.
const PDFMIME = "application/pdf"

// ErrNotPDF is returned when a payload is not a PDF document.
var ErrNotPDF = errors.New("not a pdf")

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Declared    string
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// DetectBytes detects the type of an in-memory payload. declared is the
// content type claimed by the client and is only recorded, never trusted.
func (d *Detector) DetectBytes(data []byte, declared string) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
		Declared:  declared,
	}
	d.classify(info, mtype)

	log.Debug().
		Str("mime", info.MIMEType).
		Str("ext", info.Extension).
		Str("declared", declared).
		Bool("supported", info.Supported).
		Msg("detected file type")
	return info
}

// RequirePDF returns ErrNotPDF unless data starts like a PDF file.
func (d *Detector) RequirePDF(data []byte, declared string) error {
	info := d.DetectBytes(data, declared)
	if !info.Supported {
		log.Info().Str("mime", info.MIMEType).Str("declared", declared).Str("description", info.Description).Msg("rejected upload")
		return fmt.Errorf("%w: %s", ErrNotPDF, info.Description)
	}
	return nil
}

func (d *Detector) classify(info *FileTypeInfo, mtype *mimetype.MIME) {
	switch {
	case mtype.Is(PDFMIME):
		info.Supported = true
		info.Description = "PDF document"
	case strings.HasPrefix(info.MIMEType, "text/"):
		info.Description = "Plain text file"
	case strings.HasPrefix(info.MIMEType, "image/"):
		info.Description = "Image file"
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}
