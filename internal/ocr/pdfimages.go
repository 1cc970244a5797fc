package ocr

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageImage is one embedded image pulled out of a PDF, with its page number
// and per-page image index (both 1-based).
type PageImage struct {
	PageNo  int
	ImageNo int
	Data    []byte
}

// pdfcpu names extracted files <base>_<page>_<resource>.<ext>.
var imageFilePattern = regexp.MustCompile(`_(\d+)_[^_]+\.[A-Za-z0-9]+$`)

// ListPDFImages extracts every embedded image from every page of the given
// PDF, in page order.
func ListPDFImages(content []byte) ([]PageImage, error) {
	tmpDir, err := os.MkdirTemp("", "mailtriage-ocr-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	inFile := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(inFile, content, 0o600); err != nil {
		return nil, err
	}
	outDir := filepath.Join(tmpDir, "images")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	if err := api.ExtractImagesFile(inFile, outDir, nil, nil); err != nil {
		return nil, fmt.Errorf("extract pdf images: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]PageImage, 0, len(names))
	perPage := map[int]int{}
	for _, name := range names {
		page := pageForImageFile(name)
		blob, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			return nil, err
		}
		perPage[page]++
		out = append(out, PageImage{PageNo: page, ImageNo: perPage[page], Data: blob})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PageNo != out[j].PageNo {
			return out[i].PageNo < out[j].PageNo
		}
		return out[i].ImageNo < out[j].ImageNo
	})

	return out, nil
}

func pageForImageFile(name string) int {
	if m := imageFilePattern.FindStringSubmatch(name); m != nil {
		if parsed, err := strconv.Atoi(m[1]); err == nil {
			return parsed
		}
	}
	return 1
}
