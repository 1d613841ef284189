package evaluator

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pavelanni/interviewer/internal/skills"
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+(\s+|$)`)

	fillers        = []string{"um", "uh", "like", "kinda", "sorta", "you know", "basically"}
	introCues      = []string{"first", "firstly", "to start", "to begin", "in short", "essentially", "simply put", "let me"}
	conclusionCues = []string{"so", "therefore", "in summary", "overall"}
	exampleCues    = []string{"example", "for instance", "such as", "like when"}
	comparisonCues = []string{"compared to", "versus", "whereas", "while"}
	tradeOffCues   = []string{"trade", "however", "but", "on the other hand"}
	flowWords      = []string{"first", "second", "then", "next", "finally", "because", "therefore", "so"}
)

const minIndicatorWord = 4

// features are the lexical properties of an answer.
type features struct {
	text          string
	words         []string
	sentences     []string
	wordCount     int
	sentenceCount int
	fillerCount   int
	avgSentence   float64
	hasIntro      bool
	hasConclusion bool
	hasExample    bool
	hasComparison bool
	hasTradeOff   bool
	flowCount     int
}

func preprocess(answer string) features {
	text := skills.Fold(answer)
	f := features{text: text}

	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			f.sentences = append(f.sentences, s)
		}
	}
	for _, w := range strings.Fields(text) {
		if w = strings.Trim(w, `.,;:!?"`); w != "" {
			f.words = append(f.words, w)
		}
	}
	f.wordCount = len(f.words)
	f.sentenceCount = len(f.sentences)
	if f.sentenceCount > 0 {
		f.avgSentence = float64(f.wordCount) / float64(f.sentenceCount)
	}

	for _, filler := range fillers {
		f.fillerCount += countPhrase(text, filler)
	}

	if f.sentenceCount > 0 {
		first := f.sentences[0]
		f.hasIntro = utf8.RuneCountInString(first) > 10 || startsWithAny(first, introCues)
		f.hasConclusion = startsWithAny(f.sentences[f.sentenceCount-1], conclusionCues)
	}
	f.hasExample = containsAny(text, exampleCues)
	f.hasComparison = containsAny(text, comparisonCues)
	f.hasTradeOff = containsAny(text, tradeOffCues)

	for _, w := range flowWords {
		if containsPhrase(text, w) {
			f.flowCount++
		}
	}
	return f
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// countPhrase counts occurrences of phrase in text on word boundaries.
func countPhrase(text, phrase string) int {
	if phrase == "" {
		return 0
	}
	n := 0
	for i := 0; i <= len(text)-len(phrase); {
		j := strings.Index(text[i:], phrase)
		if j < 0 {
			break
		}
		start, end := i+j, i+j+len(phrase)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			n++
		}
		i = start + 1
	}
	return n
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func containsPhrase(text, phrase string) bool {
	return countPhrase(text, phrase) > 0
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return true
		}
	}
	return false
}

func startsWithAny(sentence string, cues []string) bool {
	for _, c := range cues {
		if strings.HasPrefix(sentence, c) && boundaryAfter(sentence, len(c)) {
			return true
		}
	}
	return false
}

// mentions reports whether a concept appears in the answer text. Hyphens
// and spaces are interchangeable ("query-plan" matches "query plan").
func mentions(text, concept string) bool {
	c := skills.Fold(concept)
	if c == "" {
		return false
	}
	if containsPhrase(text, c) {
		return true
	}
	if alt := strings.ReplaceAll(c, "-", " "); alt != c && containsPhrase(text, alt) {
		return true
	}
	if alt := strings.ReplaceAll(c, " ", "-"); alt != c && containsPhrase(text, alt) {
		return true
	}
	return false
}

// indicatorPresent matches a depth indicator by phrase containment or by
// fuzzy containment against answer words of at least four characters.
func indicatorPresent(f features, indicator string) bool {
	if mentions(f.text, indicator) {
		return true
	}
	for _, w := range f.words {
		if utf8.RuneCountInString(w) >= minIndicatorWord && skills.Match(w, indicator) {
			return true
		}
	}
	return false
}
