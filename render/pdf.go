// Package render produces the PDF documents pinned for issued certificates.
package render

import (
	"bytes"
	"errors"
	"fmt"

	"codeberg.org/go-pdf/fpdf"
	"github.com/ruteri/certificate-registry/interfaces"
)

const PDFContentType = "application/pdf"

var (
	titleColor  = [3]int{0, 0, 204}
	footerColor = [3]int{128, 128, 128}
)

// PDFRenderer lays out a one-page A4 certificate in Times.
// Output is deterministic: the same document always renders to the same bytes.
type PDFRenderer struct{}

// NewPDFRenderer returns a PDF renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (PDFRenderer) ContentType() string {
	return PDFContentType
}

// Render draws doc onto a new page. Coordinates are in points from the top-left corner.
func (PDFRenderer) Render(doc interfaces.CertificateDocument) ([]byte, error) {
	if doc.StudentName == "" || doc.CourseName == "" {
		return nil, errors.New("render: student name and course name required")
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetCreationDate(doc.CompletionDate.UTC())
	pdf.SetModificationDate(doc.CompletionDate.UTC())
	pdf.SetCatalogSort(true)
	pdf.SetTitle(fmt.Sprintf("Certificate - %s - %s", doc.StudentName, doc.CourseName), true)
	pdf.SetCreator(doc.University, true)
	pdf.SetSubject("Student "+doc.Student.Hex(), true)
	pdf.SetKeywords("issuer:"+doc.Issuer.Hex()+" student:"+doc.Student.Hex(), true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	width, _ := pdf.GetPageSize()

	centered := func(style string, size float64, color [3]int, y float64, text string) {
		pdf.SetFont("Times", style, size)
		pdf.SetTextColor(color[0], color[1], color[2])
		text = tr(text)
		pdf.Text((width-pdf.GetStringWidth(text))/2, y, text)
	}
	left := func(size float64, color [3]int, y float64, text string) {
		pdf.SetFont("Times", "", size)
		pdf.SetTextColor(color[0], color[1], color[2])
		pdf.Text(50, y, tr(text))
	}
	black := [3]int{0, 0, 0}

	centered("B", 24, titleColor, 100, "CERTIFICATE OF COMPLETION")
	centered("", 14, black, 200, "This is to certify that")
	centered("B", 20, titleColor, 250, doc.StudentName)
	centered("", 14, black, 300, "has successfully completed the course")
	centered("B", 18, black, 350, doc.CourseName)
	if doc.Grade != "" {
		centered("", 14, black, 400, "Grade: "+doc.Grade)
	}

	left(12, black, 500, "Issued by: "+doc.University)
	left(12, black, 520, "Date: "+doc.CompletionDate.UTC().Format("January 2, 2006"))

	left(10, footerColor, 722, "Blockchain Verified Certificate")
	left(8, footerColor, 737, "Student: "+doc.Student.Hex())
	left(8, footerColor, 749, "Issuer: "+doc.Issuer.Hex())
	if doc.Contract != "" {
		left(8, footerColor, 761, "Contract: "+doc.Contract)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

var _ interfaces.Renderer = PDFRenderer{}
