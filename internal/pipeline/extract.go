package pipeline

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"

	"mailtriage/internal"
	"mailtriage/internal/util"
)

const extractionErrorPrefix = "extraction error: "

// ExtractEmail parses raw .eml bytes into subject, body, and attachments.
// The body prefers the plain-text part; an HTML-only message is rendered to
// text. Attachments keep their declaration order, which later fixes the
// concatenation order of their extracted text.
//
// A MIME parse failure is recoverable: the returned body is a diagnostic
// carrying the extraction error marker and the attachment list is empty.
func ExtractEmail(raw []byte) internal.RawEmail {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return internal.RawEmail{Body: extractionErrorPrefix + err.Error()}
	}

	body := env.Text
	if strings.TrimSpace(body) == "" && env.HTML != "" {
		body = htmlToText(env.HTML)
	}
	if strings.TrimSpace(body) == "" {
		body = ""
	}

	attachments := make([]internal.AttachmentRef, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		attachments = append(attachments, internal.AttachmentRef{
			Filename: filename,
			Content:  att.Content,
			Kind:     internal.KindForFilename(filename),
		})
	}

	return internal.RawEmail{
		Subject:     env.GetHeader("Subject"),
		Body:        body,
		Attachments: attachments,
	}
}

// IsExtractionFailure reports whether the email's body is the diagnostic left
// behind by a failed MIME parse rather than real content.
func IsExtractionFailure(email internal.RawEmail) bool {
	return strings.HasPrefix(email.Body, extractionErrorPrefix)
}

// Block-level close tags and <br> become line breaks before text extraction
// so the last-line duplicate heuristic sees real lines, not one long string.
var htmlBreaks = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|li|tr|h[1-6]|blockquote)>`)

func htmlToText(src string) string {
	src = htmlBreaks.ReplaceAllString(src, "\n")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return ""
	}
	doc.Find("script,style").Remove()

	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = util.CollapseSpaces(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
