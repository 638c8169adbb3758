// Package textutil provides the text normalization primitives shared by
// the router, directory and cache: whitespace/case normalization,
// diacritic folding, HTML stripping and Portuguese suffix rewriting.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize trims, lowercases and collapses runs of whitespace to a
// single space. Accents are preserved.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(text))), " ")
}

// Fold normalizes and strips diacritics ("resolução" -> "resolucao").
// Used wherever user phrasing is compared against known names.
func Fold(text string) string {
	normalized := Normalize(text)
	folded, _, err := transform.String(foldTransformer, normalized)
	if err != nil {
		return normalized
	}
	return folded
}

// StripHTML removes markup from message content. Chatwoot sometimes
// delivers "<p>Bom dia</p>" for plain messages.
func StripHTML(text string) string {
	if !strings.Contains(text, "<") {
		return strings.TrimSpace(text)
	}
	var parts []string
	tokenizer := html.NewTokenizer(strings.NewReader(text))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		case html.TextToken:
			parts = append(parts, tokenizer.Token().Data)
		}
	}
}

// singularSuffixes is applied to folded words, longest suffix first.
// It covers the plural and gender inflections that show up in informal
// team references ("financeiras", "financeiros", "financeira" all
// rewrite to "financeiro"). A full morphological analyzer is overkill
// for a directory of a handful of team names.
var singularSuffixes = []struct{ from, to string }{
	{"coes", "cao"},
	{"eiras", "eiro"},
	{"eiros", "eiro"},
	{"eira", "eiro"},
	{"oes", "ao"},
	{"icas", "ico"},
	{"icos", "ico"},
	{"ica", "ico"},
}

// Singularize rewrites common Portuguese plural/gender suffixes on each
// word of an already folded string. Deterministic: first matching
// suffix wins, then a bare trailing "s" is dropped from longer words.
func Singularize(folded string) string {
	words := strings.Fields(folded)
	for i, word := range words {
		words[i] = singularizeWord(word)
	}
	return strings.Join(words, " ")
}

// invariantWords end in "s" without being plurals; stripping it would
// turn them into unrelated words. Resolve and the directory index both
// pass through the same rewrite, so the list only needs the function
// words that show up in resolve phrases.
var invariantWords = map[string]bool{
	"mais": true, "atras": true, "apenas": true, "apos": true,
	"tres": true, "seis": true, "pois": true, "pais": true,
}

func singularizeWord(word string) string {
	if invariantWords[word] {
		return word
	}
	for _, s := range singularSuffixes {
		if strings.HasSuffix(word, s.from) {
			return word[:len(word)-len(s.from)] + s.to
		}
	}
	if len(word) > 3 && strings.HasSuffix(word, "s") {
		return word[:len(word)-1]
	}
	return word
}

// ParseCSV splits a comma-separated value into trimmed non-empty items.
func ParseCSV(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
