package scripts

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxPDFSize caps imported documents.
const maxPDFSize = 10 << 20

// ErrEmptyDocument is returned when a PDF contains no extractable text.
var ErrEmptyDocument = errors.New("document contains no text")

// ExtractPDFText returns the plain text of a PDF read from r, with runs of
// whitespace collapsed and blank lines removed.
func ExtractPDFText(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxPDFSize+1))
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}
	if len(data) > maxPDFSize {
		return "", fmt.Errorf("pdf exceeds %d bytes", maxPDFSize)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parsing pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}

	text := normalizeText(string(raw))
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func normalizeText(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
