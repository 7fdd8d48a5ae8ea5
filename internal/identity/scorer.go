package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/metal-toolbox/placer/internal/model"
)

// Scorer scores how well a catalog entry matches the tokens extracted from a unit.
type Scorer interface {
	// Score returns a non negative score, zero when the entry does not match.
	Score(entry *model.CatalogEntry, tokens []string, notes string) float64
}

// OverlapScorer scores entries by substring containment between each token and the
// entry model in either direction, weighted by the relative token length.
//
// Comparisons ignore case, whitespace and dashes.
type OverlapScorer struct {
	// VerbatimBonus is added when the entry model appears verbatim in the notes as whole words,
	// models shorter than MinModelLength earn no bonus.
	VerbatimBonus float64

	// MinModelLength is the shortest model name a token may contain to score,
	// this keeps short model names from matching every token.
	MinModelLength int
}

// NewOverlapScorer returns an OverlapScorer with the verbatim bonus.
func NewOverlapScorer(verbatimBonus float64) *OverlapScorer {
	return &OverlapScorer{VerbatimBonus: verbatimBonus, MinModelLength: 3}
}

func compact(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			return -1
		}

		return r
	}, strings.ToUpper(s))
}

// Score implements the Scorer interface.
func (o *OverlapScorer) Score(entry *model.CatalogEntry, tokens []string, notes string) float64 {
	modelName := compact(entry.Model)
	if modelName == "" {
		return 0
	}

	var score float64

	for _, t := range tokens {
		token := compact(t)
		if token == "" {
			continue
		}

		switch {
		case strings.Contains(modelName, token):
			score += float64(len(token)) / float64(len(modelName))
		case len(modelName) >= o.MinModelLength && strings.Contains(token, modelName):
			score += float64(len(modelName)) / float64(len(token))
		}
	}

	if notes != "" && len(modelName) >= o.MinModelLength && containsPhrase(normalizeSpaces(notes), normalizeSpaces(entry.Model)) {
		score += o.VerbatimBonus
	}

	return score
}

func normalizeSpaces(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// containsPhrase returns true when phrase occurs in s and is not part of a longer word.
func containsPhrase(s, phrase string) bool {
	if phrase == "" {
		return false
	}

	for i := 0; i < len(s); {
		j := strings.Index(s[i:], phrase)
		if j < 0 {
			return false
		}

		start, end := i+j, i+j+len(phrase)

		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])

		if !isWordRune(before) && !isWordRune(after) {
			return true
		}

		i = start + 1
	}

	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
