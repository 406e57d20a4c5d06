package query

import "strings"

// FTS5 treats these as syntax. Terms containing them, or matching a
// reserved word, must be quoted to read as plain text.
const ftsSpecials = `"*():^-+{}`

var ftsReserved = []string{"AND", "OR", "NOT", "NEAR"}

func isReservedWord(term string) bool {
	for _, r := range ftsReserved {
		if strings.EqualFold(term, r) {
			return true
		}
	}
	return false
}

func needsQuoting(term string) bool {
	if isReservedWord(term) {
		return true
	}
	return strings.ContainsAny(term, ftsSpecials+" ")
}

// quoteFTS5 wraps a term in double quotes, doubling any embedded quotes.
func quoteFTS5(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

// ftsTerm renders a keyword as an FTS5 query term, quoting only when the
// bare form would be read as syntax.
func ftsTerm(term string) string {
	if needsQuoting(term) {
		return quoteFTS5(term)
	}
	return term
}
