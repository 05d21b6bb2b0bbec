package htaccess

import "strings"

const (
	BeginMarker = "# BEGIN webpsync"
	EndMarker   = "# END webpsync"
)

// blockSpan locates the system-owned block in content. end is the index just
// past the end marker line, or len(content) when the end marker is missing.
func blockSpan(content string) (start, end int, ok bool) {
	start = markerLine(content, BeginMarker, 0)
	if start < 0 {
		return 0, 0, false
	}
	e := markerLine(content, EndMarker, start)
	if e < 0 {
		return start, len(content), true
	}
	end = e + len(EndMarker)
	if end < len(content) && content[end] == '\n' {
		end++
	}
	return start, end, true
}

// markerLine returns the offset of a line that is exactly marker, searching from off.
func markerLine(content, marker string, off int) int {
	for off <= len(content) {
		i := strings.Index(content[off:], marker)
		if i < 0 {
			return -1
		}
		i += off
		atStart := i == 0 || content[i-1] == '\n'
		after := i + len(marker)
		atEnd := after == len(content) || content[after] == '\n' || content[after] == '\r'
		if atStart && atEnd {
			return i
		}
		off = i + len(marker)
	}
	return -1
}

// HasBlock reports whether content carries a rule block.
func HasBlock(content string) bool {
	_, _, ok := blockSpan(content)
	return ok
}

// renderBlock wraps lines in the block markers.
func renderBlock(lines []string) string {
	var b strings.Builder
	b.WriteString(BeginMarker)
	b.WriteByte('\n')
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString(EndMarker)
	b.WriteByte('\n')
	return b.String()
}

// Splice replaces the block in content with lines, or prepends a new block
// when there is none. Everything outside the block is kept byte for byte.
func Splice(content string, lines []string) string {
	block := renderBlock(lines)
	start, end, ok := blockSpan(content)
	if !ok {
		if content == "" {
			return block
		}
		return block + "\n" + content
	}
	return content[:start] + block + content[end:]
}

// Strip removes the block from content. The second result is false when
// there was no block.
func Strip(content string) (string, bool) {
	start, end, ok := blockSpan(content)
	if !ok {
		return content, false
	}
	return content[:start] + content[end:], true
}
