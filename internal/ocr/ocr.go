// Package ocr recognizes text in raster images via an external tesseract
// binary and pulls embedded images out of PDFs for the scanned-document
// fallback.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Engine turns one raster image into recognized text.
type Engine interface {
	ImageText(ctx context.Context, image []byte) (string, error)
}

// Tesseract drives the tesseract binary over stdin/stdout, the same contract
// pytesseract uses. The binary path comes from configuration.
type Tesseract struct {
	binPath string
}

func NewTesseract(binPath string) *Tesseract {
	if strings.TrimSpace(binPath) == "" {
		binPath = "tesseract"
	}
	return &Tesseract{binPath: binPath}
}

func (t *Tesseract) ImageText(ctx context.Context, image []byte) (string, error) {
	cmd := exec.CommandContext(ctx, t.binPath, "stdin", "stdout")
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("tesseract: %s", detail)
	}
	return stdout.String(), nil
}
