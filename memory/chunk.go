package memory

import (
	"strings"
	"unicode/utf8"
)

// defaultSeparators are tried in order: paragraphs, lines, words, characters.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// SplitText cuts text into chunks of at most size characters, preferring to
// break on paragraph, line, then word boundaries. Consecutive chunks share
// up to overlap characters. Chunks are whitespace-trimmed and never empty.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultConfig.ChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return splitRecursive(text, defaultSeparators, size, overlap)
}

func splitRecursive(text string, separators []string, size, overlap int) []string {
	sep := ""
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		for _, r := range text {
			splits = append(splits, string(r))
		}
	} else {
		splits = strings.Split(text, sep)
	}

	var chunks, fits []string
	for _, s := range splits {
		if s == "" {
			continue
		}
		if utf8.RuneCountInString(s) <= size {
			fits = append(fits, s)
			continue
		}
		if len(fits) > 0 {
			chunks = append(chunks, mergeSplits(fits, sep, size, overlap)...)
			fits = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, s)
		} else {
			chunks = append(chunks, splitRecursive(s, rest, size, overlap)...)
		}
	}
	if len(fits) > 0 {
		chunks = append(chunks, mergeSplits(fits, sep, size, overlap)...)
	}
	return chunks
}

// mergeSplits packs small pieces back together up to size.
func mergeSplits(splits []string, sep string, size, overlap int) []string {
	sepLen := utf8.RuneCountInString(sep)
	var (
		chunks  []string
		current []string
		total   int
	)
	emit := func() {
		if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
			chunks = append(chunks, doc)
		}
	}
	for _, s := range splits {
		n := utf8.RuneCountInString(s)
		joinCost := 0
		if len(current) > 0 {
			joinCost = sepLen
		}
		if total+n+joinCost > size && len(current) > 0 {
			emit()
			// Keep a tail of the previous chunk as overlap.
			for len(current) > 0 && (total > overlap || total+n+sepLen > size) {
				total -= utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, s)
		total += n
	}
	emit()
	return chunks
}
