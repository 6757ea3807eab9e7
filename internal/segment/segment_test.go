package segment

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentenceSegmentation(t *testing.T) {
	s := NewSimple(TypeSentence)
	segs := s.Segment("Reading chapter four. Taking notes on thermodynamics! Done?")

	require.Len(t, segs, 3)
	assert.Equal(t, "Reading chapter four.", segs[0].Text)
	assert.Equal(t, "Taking notes on thermodynamics!", segs[1].Text)
	assert.Equal(t, "Done?", segs[2].Text)

	for _, seg := range segs {
		assert.Equal(t, TypeSentence, seg.Type)
	}
}

func TestSentenceOffsetsIndexSourceText(t *testing.T) {
	text := "First sentence. Second one."
	segs := NewSimple(TypeSentence).Segment(text)

	require.Len(t, segs, 2)
	for _, seg := range segs {
		assert.Equal(t, seg.Text, text[seg.StartIndex:seg.EndIndex])
	}
}

func TestSentenceTrailingFragment(t *testing.T) {
	segs := NewSimple(TypeSentence).Segment("Complete sentence. trailing fragment")
	require.Len(t, segs, 2)
	assert.Equal(t, "trailing fragment", segs[1].Text)
}

func TestLineSegmentation(t *testing.T) {
	text := "line one\n\n  line two  \nline three"
	segs := NewSimple(TypeLine).Segment(text)

	require.Len(t, segs, 3)
	assert.Equal(t, "line one", segs[0].Text)
	assert.Equal(t, "line two", segs[1].Text)
	assert.Equal(t, "line three", segs[2].Text)
	for _, seg := range segs {
		assert.Equal(t, TypeLine, seg.Type)
		assert.Equal(t, seg.Text, text[seg.StartIndex:seg.EndIndex])
	}
}

func TestChunkSegmentation(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += "notebook "
	}
	segs := NewSimple(TypeChunk).Segment(long)

	require.Greater(t, len(segs), 1)
	for _, seg := range segs {
		assert.LessOrEqual(t, len(seg.Text), chunkSize)
		assert.Equal(t, TypeChunk, seg.Type)
		assert.Equal(t, seg.Text, long[seg.StartIndex:seg.EndIndex])
	}
}

func TestChunkHardCutKeepsRunesIntact(t *testing.T) {
	// An unbroken multibyte run longer than one chunk: hard cuts must land
	// on rune boundaries, never mid-rune.
	long := strings.Repeat("数学の勉強", 30)
	segs := NewSimple(TypeChunk).Segment(long)

	require.Greater(t, len(segs), 1)
	for _, seg := range segs {
		assert.True(t, utf8.ValidString(seg.Text), "chunk split a rune: %q", seg.Text)
		assert.Equal(t, seg.Text, long[seg.StartIndex:seg.EndIndex])
	}

	var rejoined string
	for _, seg := range segs {
		rejoined += seg.Text
	}
	assert.Equal(t, long, rejoined)
}

func TestEmptyInput(t *testing.T) {
	for _, mode := range []Type{TypeSentence, TypeLine, TypeChunk} {
		assert.Empty(t, NewSimple(mode).Segment(""), string(mode))
		assert.Empty(t, NewSimple(mode).Segment("   \n  "), string(mode))
	}
}
