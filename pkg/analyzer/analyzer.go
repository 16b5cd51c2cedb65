// Package analyzer tokenizes field values into normalized
// (token, position) sequences, per SPEC_FULL.md §4.3. The tokenize →
// lowercase → stopword → stem pipeline and stopword list are
// adapted from pkg/text/analyzer.go, with stemming swapped from a
// hand-rolled Porter stemmer to the Snowball English stemmer used by
// the Zeeeepa-blaze example.
package analyzer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	snowballeng "github.com/kljensen/snowball/english"
)

// ErrUnknownAnalyzer is returned when a mapping names an analyzer that
// is not registered.
var ErrUnknownAnalyzer = errors.New("unknown analyzer")

// Token is one normalized term at a position within a field's token
// stream.
type Token struct {
	Term     string
	Position int
}

// Analyzer turns text into a token stream.
type Analyzer interface {
	Analyze(text string) []Token
}

const (
	Standard  = "standard"
	Keyword   = "keyword"
	Lowercase = "lowercase"
)

var splitter = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Registry holds the built-in and any caller-registered analyzers, plus
// the default applied to fields without an explicit analyzer name.
type Registry struct {
	analyzers       map[string]Analyzer
	defaultAnalyzer string
}

// NewRegistry builds the built-in standard/keyword/lowercase analyzers.
// defaultAnalyzer falls back to "standard" when empty.
func NewRegistry(defaultAnalyzer string) *Registry {
	if defaultAnalyzer == "" {
		defaultAnalyzer = Standard
	}
	return &Registry{
		analyzers: map[string]Analyzer{
			Standard:  &standardAnalyzer{stem: true, stopwords: true},
			Keyword:   &keywordAnalyzer{},
			Lowercase: &standardAnalyzer{stem: false, stopwords: false, noSplit: true},
		},
		defaultAnalyzer: defaultAnalyzer,
	}
}

// Register adds or replaces a named analyzer.
func (r *Registry) Register(name string, a Analyzer) {
	r.analyzers[name] = a
}

// Analyze tokenizes text with the named analyzer, or the registry
// default when name is empty.
func (r *Registry) Analyze(text, name string) ([]Token, error) {
	if name == "" {
		name = r.defaultAnalyzer
	}
	a, ok := r.analyzers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAnalyzer, name)
	}
	return a.Analyze(text), nil
}

type keywordAnalyzer struct{}

func (keywordAnalyzer) Analyze(text string) []Token {
	if text == "" {
		return nil
	}
	return []Token{{Term: text, Position: 0}}
}

type standardAnalyzer struct {
	stem      bool
	stopwords bool
	noSplit   bool
}

func (a *standardAnalyzer) Analyze(text string) []Token {
	var raw []string
	if a.noSplit {
		raw = strings.Fields(text)
	} else {
		raw = splitter.Split(text, -1)
	}

	tokens := make([]Token, 0, len(raw))
	position := 0
	for _, part := range raw {
		if part == "" {
			continue
		}
		term := strings.ToLower(part)

		if a.stopwords && englishStopwords[term] {
			position++
			continue
		}
		if a.stem {
			term = snowballeng.Stem(term, false)
		}
		tokens = append(tokens, Token{Term: term, Position: position})
		position++
	}
	return tokens
}

var englishStopwords = buildStopwords([]string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by",
	"for", "if", "in", "into", "is", "it", "no", "not", "of",
	"on", "or", "such", "that", "the", "their", "then", "there",
	"these", "they", "this", "to", "was", "will", "with",
	"i", "you", "he", "she", "we", "me", "him", "her",
	"us", "them", "what", "which", "who", "when", "where", "why",
	"how", "all", "each", "every", "both", "few", "more", "most",
	"other", "some", "can", "could", "may", "might", "must",
	"shall", "should", "would", "am", "been", "being", "have",
	"has", "had", "do", "does", "did", "doing",
})

func buildStopwords(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
