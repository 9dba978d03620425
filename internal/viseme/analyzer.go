// Package viseme converts text into a timed viseme sequence for lip-sync
// animation. Timing is an estimate derived from word length, anchored to the
// wall-clock instant synthesis begins, so renderers sample elapsed time
// against the timeline instead of reacting to playback callbacks.
package viseme

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Viseme represents a mouth shape category for lip-sync animation
type Viseme string

const (
	VisemeSilent Viseme = "silent" // Closed mouth
	VisemeAA     Viseme = "aa"     // Open mouth (father)
	VisemeEE     Viseme = "ee"     // Smile (see)
	VisemeII     Viseme = "ii"     // Narrow (sit)
	VisemeOO     Viseme = "oo"     // Rounded (boot)
	VisemeUU     Viseme = "uu"     // Tight rounded (book)
	VisemeFV     Viseme = "fv"     // Lip on teeth (five)
	VisemeTH     Viseme = "th"     // Tongue between teeth
	VisemeMBP    Viseme = "mbp"    // Closed lips (mother, boy, pan)
	VisemeLNTD   Viseme = "lntd"   // Tongue to roof (love, no, two, day)
	VisemeWQ     Viseme = "wq"     // Puckered (we, queen)
	VisemeSZ     Viseme = "sz"     // Teeth together (see, zoo)
	VisemeKG     Viseme = "kg"     // Back tongue (key, go)
	VisemeCHJ    Viseme = "chj"    // Puckered narrow (church, joy)
	VisemeR      Viseme = "r"      // Slight pucker (run)
)

// VisemeEvent is one mouth shape over an absolute time span [Start, End).
type VisemeEvent struct {
	Type  Viseme    `json:"type"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WordViseme holds the viseme sequence for a single spoken word.
// The events are contiguous, non-overlapping, and exactly tile
// [Start, End); the sequence begins and ends with silence.
type WordViseme struct {
	Word    string        `json:"word"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
	Visemes []VisemeEvent `json:"visemes"`
}

// Timing constants for estimated speech
const (
	perCharDuration  = 50 * time.Millisecond  // added per character of the word
	baseWordDuration = 100 * time.Millisecond // minimum articulation time
	interWordPause   = 100 * time.Millisecond // gap between words
)

// digraphs are two-letter combinations treated as a single phoneme.
// Longest match wins over single-character lookup.
var digraphs = map[string]Viseme{
	"th": VisemeTH,
	"sh": VisemeCHJ,
	"ch": VisemeCHJ,
	"ph": VisemeFV,
	"wh": VisemeWQ,
	"ng": VisemeKG,
}

// phonemeToViseme maps single-character phonemes to mouth shapes.
// Anything absent from this table falls back to the open-mouth shape.
var phonemeToViseme = map[byte]Viseme{
	'a': VisemeAA, 'e': VisemeEE, 'i': VisemeII, 'o': VisemeOO, 'u': VisemeUU,
	'p': VisemeMBP, 'b': VisemeMBP, 'm': VisemeMBP,
	'f': VisemeFV, 'v': VisemeFV,
	't': VisemeLNTD, 'd': VisemeLNTD, 'n': VisemeLNTD, 'l': VisemeLNTD,
	's': VisemeSZ, 'z': VisemeSZ,
	'c': VisemeKG, 'k': VisemeKG, 'g': VisemeKG, 'q': VisemeKG, 'x': VisemeKG,
	'j': VisemeCHJ,
	'r': VisemeR,
	'w': VisemeWQ,
	'y': VisemeII,
	'h': VisemeAA,
}

// Analyzer estimates phoneme timing for text without provider phoneme data.
type Analyzer struct{}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// AnalyzeText decomposes text into per-word viseme sequences anchored at
// referenceTime. Each word's duration is estimated from its length, split
// into phonemeCount+2 equal slices with a silence slice at each edge, and
// the running clock advances by the word duration plus an inter-word pause.
func (a *Analyzer) AnalyzeText(text string, referenceTime time.Time) []WordViseme {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	timeline := make([]WordViseme, 0, len(words))
	clock := referenceTime

	for _, word := range words {
		wordDuration := baseWordDuration + time.Duration(utf8.RuneCountInString(word))*perCharDuration

		visemes := decompose(word)
		wordStart := clock
		wordEnd := wordStart.Add(wordDuration)

		// phonemeCount + 2 slices: leading silence, one per phoneme,
		// trailing silence. Boundaries are computed from the word start
		// so the slices tile [wordStart, wordEnd) exactly.
		slices := len(visemes) + 2
		events := make([]VisemeEvent, 0, slices)
		boundary := func(i int) time.Time {
			return wordStart.Add(wordDuration * time.Duration(i) / time.Duration(slices))
		}

		events = append(events, VisemeEvent{Type: VisemeSilent, Start: boundary(0), End: boundary(1)})
		for i, v := range visemes {
			events = append(events, VisemeEvent{Type: v, Start: boundary(i + 1), End: boundary(i + 2)})
		}
		events = append(events, VisemeEvent{Type: VisemeSilent, Start: boundary(slices - 1), End: boundary(slices)})

		timeline = append(timeline, WordViseme{
			Word:    word,
			Start:   wordStart,
			End:     wordEnd,
			Visemes: events,
		})

		clock = wordEnd.Add(interWordPause)
	}

	return timeline
}

// decompose maps a word to its phoneme viseme sequence using
// longest-match-first lookup: two-letter digraphs take priority over
// single characters. Non-letter characters are skipped.
func decompose(word string) []Viseme {
	lower := strings.ToLower(word)
	visemes := make([]Viseme, 0, len(lower))

	for i := 0; i < len(lower); i++ {
		ch := lower[i]
		if ch < 'a' || ch > 'z' {
			continue
		}

		if i+1 < len(lower) {
			if v, ok := digraphs[lower[i:i+2]]; ok {
				visemes = append(visemes, v)
				i++
				continue
			}
		}

		v, ok := phonemeToViseme[ch]
		if !ok {
			v = VisemeAA
		}
		visemes = append(visemes, v)
	}

	return visemes
}

// Sample returns the viseme event active at now, or nil when the timeline
// has no event covering that instant (inter-word pauses included). It is a
// pure function of its inputs and safe to call from any tick source.
func Sample(now time.Time, timeline []WordViseme) *VisemeEvent {
	for i := range timeline {
		w := &timeline[i]
		if now.Before(w.Start) {
			return nil
		}
		if !now.Before(w.End) {
			continue
		}
		for j := range w.Visemes {
			ev := &w.Visemes[j]
			if !now.Before(ev.Start) && now.Before(ev.End) {
				return ev
			}
		}
		return nil
	}
	return nil
}

// Duration returns the total span of the timeline from the first word's
// start to the last word's end. Zero for an empty timeline.
func Duration(timeline []WordViseme) time.Duration {
	if len(timeline) == 0 {
		return 0
	}
	return timeline[len(timeline)-1].End.Sub(timeline[0].Start)
}
