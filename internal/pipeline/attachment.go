package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	pdf "github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"mailtriage/internal"
	"mailtriage/internal/ocr"
)

const unsupportedMarker = "Unsupported file format"

// AttachmentExtractor converts attachment payloads into text. PDFs try the
// text layer first and fall back to recognizing embedded images, because
// scanned or faxed financial documents commonly carry no text layer at all.
type AttachmentExtractor struct {
	OCR ocr.Engine
	// ListImages pulls embedded images out of a PDF; tests substitute it.
	ListImages func([]byte) ([]ocr.PageImage, error)
}

func NewAttachmentExtractor(engine ocr.Engine) *AttachmentExtractor {
	return &AttachmentExtractor{OCR: engine, ListImages: ocr.ListPDFImages}
}

// Extract never fails past this boundary: a broken attachment yields method
// "error" with a diagnostic, so one bad file cannot abort the whole email.
func (x *AttachmentExtractor) Extract(ctx context.Context, att internal.AttachmentRef) internal.ExtractedAttachmentText {
	out := internal.ExtractedAttachmentText{SourceFilename: att.Filename}

	switch att.Kind {
	case internal.KindPDF:
		text, method, err := x.extractPDF(ctx, att.Content)
		if err != nil {
			out.Method = internal.MethodError
			out.Text = err.Error()
			return out
		}
		out.Method = method
		out.Text = text
	case internal.KindDOCX:
		text, err := extractDOCX(att.Content)
		if err != nil {
			out.Method = internal.MethodError
			out.Text = err.Error()
			return out
		}
		out.Method = internal.MethodNative
		out.Text = text
	default:
		out.Method = internal.MethodUnsupported
		out.Text = unsupportedMarker
	}

	return out
}

// ExtractAll extracts every attachment concurrently. Each attachment is a
// pure computation over its own bytes, so parallelism is safe; the output
// slice keeps the declaration order.
func (x *AttachmentExtractor) ExtractAll(ctx context.Context, attachments []internal.AttachmentRef) []internal.ExtractedAttachmentText {
	out := make([]internal.ExtractedAttachmentText, len(attachments))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, att := range attachments {
		g.Go(func() error {
			out[i] = x.Extract(ctx, att)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// CombineAttachmentText joins extracted texts in declaration order.
// Unsupported formats contribute nothing; diagnostics from failed
// extractions are kept so the model sees what the operator will see.
func CombineAttachmentText(texts []internal.ExtractedAttachmentText) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if t.Method == internal.MethodUnsupported {
			continue
		}
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, "\n")
}

func (x *AttachmentExtractor) extractPDF(ctx context.Context, content []byte) (string, internal.ExtractionMethod, error) {
	text, err := pdfText(content)
	if err != nil {
		return "", internal.MethodError, fmt.Errorf("read pdf: %w", err)
	}
	if strings.TrimSpace(text) != "" {
		return text, internal.MethodNative, nil
	}

	ocrText, err := x.ocrEmbeddedImages(ctx, content)
	if err != nil {
		return "", internal.MethodError, err
	}
	return ocrText, internal.MethodOCR, nil
}

func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (x *AttachmentExtractor) ocrEmbeddedImages(ctx context.Context, content []byte) (string, error) {
	if x.OCR == nil {
		return "", errors.New("no ocr engine configured")
	}

	images, err := x.ListImages(content)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, img := range images {
		text, err := x.OCR.ImageText(ctx, img.Data)
		if err != nil {
			return "", fmt.Errorf("ocr page %d image %d: %w", img.PageNo, img.ImageNo, err)
		}
		fmt.Fprintf(&b, "\n[Page %d, Image %d]:\n%s\n", img.PageNo, img.ImageNo, text)
	}
	return b.String(), nil
}

func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("docx missing word/document.xml")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var out strings.Builder
	var para strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				var text string
				if err := decoder.DecodeElement(&text, &t); err != nil {
					return "", fmt.Errorf("parse docx: %w", err)
				}
				para.WriteString(text)
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				out.WriteString(para.String())
				out.WriteString("\n")
				para.Reset()
			}
		}
	}
	if para.Len() > 0 {
		out.WriteString(para.String())
		out.WriteString("\n")
	}

	return out.String(), nil
}
