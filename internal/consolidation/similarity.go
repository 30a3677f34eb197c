package consolidation

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonWordRegex = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	spaceRegex   = regexp.MustCompile(`\s+`)
)

// Checklist text is mostly Spanish, with some English equipment jargon.
var stopwords = map[string]struct{}{
	"del": {}, "las": {}, "los": {}, "una": {}, "uno": {}, "unos": {}, "unas": {},
	"por": {}, "para": {}, "con": {}, "sin": {}, "sobre": {}, "entre": {}, "hacia": {},
	"que": {}, "como": {}, "mas": {}, "muy": {}, "esta": {}, "este": {}, "esto": {},
	"estan": {}, "hay": {}, "sus": {}, "son": {}, "fue": {}, "ser": {}, "tiene": {},
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "not": {}, "was": {},
	"are": {}, "has": {}, "have": {}, "this": {}, "that": {},
}

// normalize lowercases, folds accents, turns punctuation into spaces and
// collapses whitespace.
func normalize(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = nonWordRegex.ReplaceAllString(folded, " ")
	return strings.TrimSpace(spaceRegex.ReplaceAllString(folded, " "))
}

// tokenize returns the significant tokens of already normalized text.
func tokenize(normalized string) []string {
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) <= 2 {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// jaccard returns the Jaccard similarity of two token sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// textScore compares two free-text descriptions. Containment in either
// direction scores 1.0 as long as the shorter side carries at least one
// significant token; otherwise the Jaccard overlap is returned.
func textScore(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	ta, tb := tokenize(na), tokenize(nb)
	shorter, longer, shorterTokens := na, nb, ta
	if len(na) > len(nb) {
		shorter, longer, shorterTokens = nb, na, tb
	}
	if len(shorterTokens) > 0 && containsPhrase(longer, shorter) {
		return 1.0
	}
	return jaccard(ta, tb)
}

// containsPhrase reports whether needle occurs in haystack on word boundaries.
func containsPhrase(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

// sectionMatches applies the section rule: an issue with a section title only
// matches a work order filed under the same section or mentioning it.
func sectionMatches(issueSection, woSection, woDescription string) bool {
	section := normalize(issueSection)
	if section == "" {
		return true
	}
	if normalize(woSection) == section {
		return true
	}
	return containsPhrase(normalize(woDescription), section)
}
