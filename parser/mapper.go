package parser

import (
	"strings"

	"github.com/corymhall/cargo-appraiser/lsp"
)

// Mapper converts between byte offsets and LSP line/character positions
// using a precomputed line-start table.
type Mapper struct {
	text       string
	lineStarts []uint
}

func NewMapper(text string) *Mapper {
	starts := make([]uint, 1, strings.Count(text, "\n")+1)
	starts[0] = 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, uint(i+1))
		}
	}
	return &Mapper{text: text, lineStarts: starts}
}

// OffsetToPosition converts a byte offset to a position. Offsets past the
// end of the text clamp to the final position.
func (m *Mapper) OffsetToPosition(offset uint) lsp.Position {
	if offset > uint(len(m.text)) {
		offset = uint(len(m.text))
	}
	// binary search for the last line start <= offset
	lo, hi := 0, len(m.lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if m.lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lsp.Position{
		Line:      int32(lo),
		Character: int32(offset - m.lineStarts[lo]),
	}
}

// PositionToOffset converts a position to a byte offset. Positions past the
// end of a line clamp to the line end; lines past the end of the document
// clamp to the document end.
func (m *Mapper) PositionToOffset(pos lsp.Position) uint {
	if pos.Line < 0 {
		return 0
	}
	if int(pos.Line) >= len(m.lineStarts) {
		return uint(len(m.text))
	}
	start := m.lineStarts[pos.Line]
	end := uint(len(m.text))
	if int(pos.Line+1) < len(m.lineStarts) {
		end = m.lineStarts[pos.Line+1] - 1
	}
	offset := start + uint(pos.Character)
	if offset > end {
		offset = end
	}
	return offset
}
