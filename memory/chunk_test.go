package memory_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-graph/memory"
)

func TestSplitText_ShortTextIsOneChunk(t *testing.T) {
	chunks := memory.SplitText("  My name is Shibin  ", 500, 0)
	assert.Equal(t, []string{"My name is Shibin"}, chunks)
}

func TestSplitText_RespectsSizeAndKeepsWords(t *testing.T) {
	text := strings.Repeat("personal preference statement ", 60)
	chunks := memory.SplitText(text, 500, 0)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 500)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")))
}

func TestSplitText_PrefersParagraphs(t *testing.T) {
	para := strings.Repeat("a", 300)
	text := para + "\n\n" + para
	chunks := memory.SplitText(text, 500, 0)
	assert.Equal(t, []string{para, para}, chunks)
}

func TestSplitText_HardSplitsLongWords(t *testing.T) {
	word := strings.Repeat("x", 1200)
	chunks := memory.SplitText(word, 500, 0)
	require.Len(t, chunks, 3)
	assert.Equal(t, word, strings.Join(chunks, ""))
}

func TestSplitText_Overlap(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	chunks := memory.SplitText(text, 15, 5)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1])
		cur := strings.Fields(chunks[i])
		assert.Equal(t, prev[len(prev)-1], cur[0], "chunk %d should start with the tail of chunk %d", i, i-1)
	}
}

func TestSplitText_Empty(t *testing.T) {
	assert.Empty(t, memory.SplitText("   ", 500, 0))
}
