package render

import (
	"bytes"
	"errors"
	"fmt"
)

// MaxTemplateSize bounds uploaded certificate templates.
const MaxTemplateSize = 10 << 20

var (
	// ErrNotPDF is returned for uploads that are not PDF documents.
	ErrNotPDF = errors.New("only PDF files are allowed")
	// ErrTemplateTooLarge is returned for uploads over MaxTemplateSize.
	ErrTemplateTooLarge = errors.New("file too large")
)

// ValidateTemplate accepts an uploaded document that replaces the generated one.
// contentType is the declared MIME type of the upload.
func ValidateTemplate(contentType string, data []byte) error {
	if contentType != PDFContentType {
		return fmt.Errorf("%w: got %q", ErrNotPDF, contentType)
	}
	if len(data) > MaxTemplateSize {
		return ErrTemplateTooLarge
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return fmt.Errorf("%w: missing PDF header", ErrNotPDF)
	}
	return nil
}
