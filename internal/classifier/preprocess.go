package classifier

import (
	"strings"
	"unicode"
)

// Preprocessor cleans raw OCR text before segmentation.
type Preprocessor interface {
	Process(text string) string
}

// WhitespacePreprocessor collapses the whitespace artifacts OCR engines
// produce: runs of spaces, stray tabs, and blank-line padding. Line breaks
// are kept so line-mode segmentation still works.
type WhitespacePreprocessor struct{}

// NewWhitespacePreprocessor creates the default preprocessor.
func NewWhitespacePreprocessor() *WhitespacePreprocessor {
	return &WhitespacePreprocessor{}
}

// Process normalizes whitespace without altering the words themselves.
func (p *WhitespacePreprocessor) Process(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lines := strings.Split(text, "\n")
	wrote := false
	for _, line := range lines {
		cleaned := collapseSpaces(line)
		if cleaned == "" {
			continue
		}
		if wrote {
			b.WriteByte('\n')
		}
		b.WriteString(cleaned)
		wrote = true
	}
	return b.String()
}

// collapseSpaces trims a line and squeezes internal whitespace runs to one
// space.
func collapseSpaces(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	inSpace := false
	for _, r := range strings.TrimSpace(line) {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace {
			b.WriteByte(' ')
			inSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
