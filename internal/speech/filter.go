package speech

import (
	"regexp"
	"strings"
	"sync"
)

// DefaultHesitations are pure hesitation sounds. Unlike conversational
// fillers ("like", "so"), removing these never changes an answer's meaning.
var DefaultHesitations = []string{
	"um", "uh", "uhh", "umm", "er", "ah", "hmm", "mm", "mhm",
}

// TranscriptFilter drops hesitation sounds from recognition results so an
// answer turn of nothing but "um... uh" does not count as content.
type TranscriptFilter struct {
	mu      sync.RWMutex
	words   map[string]struct{}
	pattern *regexp.Regexp
}

// NewTranscriptFilter creates a filter. A nil word list uses
// DefaultHesitations.
func NewTranscriptFilter(words []string) *TranscriptFilter {
	if words == nil {
		words = DefaultHesitations
	}

	f := &TranscriptFilter{words: make(map[string]struct{}, len(words))}
	for _, word := range words {
		f.words[strings.ToLower(word)] = struct{}{}
	}
	f.rebuild()
	return f
}

func (f *TranscriptFilter) rebuild() {
	if len(f.words) == 0 {
		f.pattern = nil
		return
	}

	patterns := make([]string, 0, len(f.words))
	for word := range f.words {
		patterns = append(patterns, `\b`+regexp.QuoteMeta(word)+`\b`)
	}
	f.pattern = regexp.MustCompile(`(?i)(` + strings.Join(patterns, `|`) + `)`)
}

// SetWords replaces the hesitation word list.
func (f *TranscriptFilter) SetWords(words []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.words = make(map[string]struct{}, len(words))
	for _, word := range words {
		f.words[strings.ToLower(word)] = struct{}{}
	}
	f.rebuild()
}

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	punctOnlyPattern  = regexp.MustCompile(`^[.,!?;:\s]+$`)
)

// Clean strips hesitation sounds and normalizes whitespace. The boolean
// reports whether meaningful content remains.
func (f *TranscriptFilter) Clean(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	f.mu.RLock()
	pattern := f.pattern
	f.mu.RUnlock()

	cleaned := text
	if pattern != nil {
		cleaned = pattern.ReplaceAllString(cleaned, "")
	}
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if punctOnlyPattern.MatchString(cleaned) {
		cleaned = ""
	}
	return cleaned, cleaned != ""
}

// HesitationOnly reports whether text carries no content beyond
// hesitation sounds and punctuation.
func (f *TranscriptFilter) HesitationOnly(text string) bool {
	_, meaningful := f.Clean(text)
	return !meaningful
}
