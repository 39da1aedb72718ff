package formex

import (
	"strings"

	"github.com/antchfx/xmlquery"
)

// SourceTextIndex maps unit keys to exhaustively-extracted source text.
//
// The exhaustive walk is the counterweight to the structural parser: it
// collects every text node under a unit's subtree with no tag whitelist, so
// any content the parser's recognized paths miss still shows up here and
// depresses that unit's coverage ratio.
type SourceTextIndex map[string]string

// BuildSourceIndex walks each unit's subtree and records its full collapsed
// text. The units come straight from the structural parse, so both
// extraction paths agree on boundaries by element identity.
func BuildSourceIndex(units []UnitRef) SourceTextIndex {
	index := make(SourceTextIndex, len(units))
	for _, unit := range units {
		index[unit.Key] = CollapseSpace(subtreeText(unit.Node))
	}
	return index
}

// subtreeText collects every text node under n, in document order, with no
// filtering of any kind.
func subtreeText(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	gatherText(n, &sb)
	return sb.String()
}
