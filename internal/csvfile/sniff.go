package csvfile

import (
	"bytes"

	"github.com/rotisserie/eris"
)

// DefaultDelimiters are the delimiters recognised in export files: the
// standard comma and the semicolon used by "compatibility mode" exports.
var DefaultDelimiters = []rune{',', ';'}

// ErrNoDelimiter is returned when no candidate delimiter splits the header.
var ErrNoDelimiter = eris.New("csvfile: could not determine delimiter")

// SniffDelimiter picks the delimiter that splits the sample into a consistent
// number of fields per line. Only delimiters that appear in the first line
// (the header) are considered, and characters inside double-quoted fields are
// ignored. Ties go to the earlier candidate. The final line of the sample is
// dropped when the sample does not end in a newline, since it may be cut.
func SniffDelimiter(sample []byte, candidates ...rune) (rune, error) {
	if len(candidates) == 0 {
		candidates = DefaultDelimiters
	}

	lines := sampleLines(sample)
	if len(lines) == 0 {
		return 0, ErrNoDelimiter
	}

	var (
		best      rune
		bestScore = -1
	)
	for _, c := range candidates {
		headerCount := countUnquoted(lines[0], c)
		if headerCount == 0 {
			continue
		}
		score := 0
		for _, line := range lines {
			if countUnquoted(line, c) == headerCount {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}

	if bestScore < 0 {
		return 0, ErrNoDelimiter
	}
	return best, nil
}

// sampleLines splits a sample into logical lines. Newlines inside quoted
// fields do not end a line.
func sampleLines(sample []byte) [][]byte {
	sample = bytes.TrimPrefix(sample, []byte(utf8BOM))

	var (
		lines    [][]byte
		start    int
		inQuotes bool
	)
	for i, b := range sample {
		switch b {
		case '"':
			inQuotes = !inQuotes
		case '\n':
			if inQuotes {
				continue
			}
			line := bytes.TrimRight(sample[start:i], "\r")
			if len(line) > 0 {
				lines = append(lines, line)
			}
			start = i + 1
		}
	}

	// A trailing partial line is only trusted when it is the whole sample.
	if start < len(sample) && len(lines) == 0 {
		lines = append(lines, bytes.TrimRight(sample[start:], "\r"))
	}
	return lines
}

// countUnquoted counts occurrences of delim outside double-quoted sections.
func countUnquoted(line []byte, delim rune) int {
	var (
		n        int
		inQuotes bool
	)
	for _, r := range string(line) {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			n++
		}
	}
	return n
}
