// Package segment splits preprocessed text into classification units.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Type describes the granularity a segment was produced at.
type Type string

const (
	// TypeSentence is a sentence-level segment.
	TypeSentence Type = "sentence"
	// TypeLine is a line-level segment.
	TypeLine Type = "line"
	// TypeChunk is a fixed-size chunk segment.
	TypeChunk Type = "chunk"
)

// TextSegment is a contiguous span of the source text. Immutable once
// produced; offsets index into the source text passed to the segmenter.
type TextSegment struct {
	Text       string `json:"text"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
	Type       Type   `json:"type"`
}

// Segmenter splits text into segments.
type Segmenter interface {
	Segment(text string) []TextSegment
}

// chunkSize is the target chunk length in bytes. Cuts always land on a rune
// boundary, so a chunk may run a few bytes short.
const chunkSize = 200

// Simple is a rule-based segmenter. OCR output is noisy, so the rules stay
// permissive: empty or whitespace-only spans are skipped at every mode.
type Simple struct {
	mode Type
}

// NewSimple creates a segmenter for the given granularity.
func NewSimple(mode Type) *Simple {
	return &Simple{mode: mode}
}

// Segment splits text according to the configured mode.
func (s *Simple) Segment(text string) []TextSegment {
	switch s.mode {
	case TypeLine:
		return splitLines(text)
	case TypeChunk:
		return splitChunks(text)
	default:
		return splitSentences(text)
	}
}

func splitSentences(text string) []TextSegment {
	var segments []TextSegment
	start := -1
	for i, r := range text {
		if start == -1 {
			if !unicode.IsSpace(r) {
				start = i
			}
			continue
		}
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			end := i + 1
			if r == '\n' {
				end = i
			}
			if seg, ok := makeSegment(text, start, end, TypeSentence); ok {
				segments = append(segments, seg)
			}
			start = -1
		}
	}
	if start != -1 {
		if seg, ok := makeSegment(text, start, len(text), TypeSentence); ok {
			segments = append(segments, seg)
		}
	}
	return segments
}

func splitLines(text string) []TextSegment {
	var segments []TextSegment
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		if seg, ok := makeSegment(text, offset, offset+len(line), TypeLine); ok {
			segments = append(segments, seg)
		}
		offset += len(line) + 1
	}
	return segments
}

func splitChunks(text string) []TextSegment {
	var segments []TextSegment
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			// Break on the last space inside the window to avoid splitting
			// words; unbroken runs are hard-cut on the nearest rune boundary.
			if idx := strings.LastIndexByte(text[start:end], ' '); idx > 0 {
				end = start + idx
			} else {
				for end > start && !utf8.RuneStart(text[end]) {
					end--
				}
			}
		}
		if seg, ok := makeSegment(text, start, end, TypeChunk); ok {
			segments = append(segments, seg)
		}
		start = end
		for start < len(text) && text[start] == ' ' {
			start++
		}
	}
	return segments
}

// makeSegment trims surrounding whitespace while keeping offsets anchored to
// the source text. Returns false for empty spans.
func makeSegment(text string, start, end int, typ Type) (TextSegment, bool) {
	for start < end && unicode.IsSpace(rune(text[start])) {
		start++
	}
	for end > start && unicode.IsSpace(rune(text[end-1])) {
		end--
	}
	if start >= end {
		return TextSegment{}, false
	}
	return TextSegment{
		Text:       text[start:end],
		StartIndex: start,
		EndIndex:   end,
		Type:       typ,
	}, true
}
