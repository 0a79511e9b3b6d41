package moderation

import (
	"log/slog"
	"slices"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// leet maps look-alike characters back to the letter they stand for.
var leet = map[rune]rune{
	'4': 'a', '@': 'a',
	'3': 'e', '€': 'e',
	'1': 'i', '!': 'i', '|': 'i',
	'0': 'o',
	'5': 's', '$': 's',
}

// Moderator masks forbidden words in chat messages before they are stored.
// The automaton is read-only after construction so a Moderator is safe for
// concurrent use.
type Moderator struct {
	machine *goahocorasick.Machine
	mask    rune
	log     *slog.Logger
}

// folded is a text reduced to lowercase letters with noise dropped.
// source[i] is the rune index in the original text of letters[i].
type folded struct {
	letters []rune
	source  []int
}

// span is a half-open range of rune indexes in the original text.
type span struct{ from, to int }

// NewModerator builds the Aho-Corasick automaton over the folded dictionary.
// Entries that fold to nothing (pure punctuation) and duplicates are skipped.
func NewModerator(words []string, mask rune, log *slog.Logger) (*Moderator, error) {
	keys := lo.Uniq(lo.FilterMap(words, func(word string, _ int) (string, bool) {
		letters := fold(word).letters
		return string(letters), len(letters) > 0
	}))
	patterns := lo.Map(keys, func(key string, _ int) []rune { return []rune(key) })

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{machine: machine, mask: mask, log: log}, nil
}

// Censor replaces every rune of a matched word with the mask rune,
// including the noise sprinkled inside it ("b.a.d" counts as "bad").
func (m *Moderator) Censor(text string) string {
	spans := m.find(text)
	if len(spans) == 0 {
		return text
	}
	runes := []rune(text)
	for _, s := range spans {
		for i := s.from; i < s.to; i++ {
			runes[i] = m.mask
		}
	}
	m.log.Debug("Message censored", "spans", len(spans))
	return string(runes)
}

// find returns the merged, ordered spans of the original text covered by a
// dictionary word.
func (m *Moderator) find(text string) []span {
	f := fold(text)
	if len(f.letters) == 0 {
		return nil
	}
	hits := m.machine.MultiPatternSearch(f.letters, false)
	spans := make([]span, 0, len(hits))
	for _, hit := range hits {
		last := hit.Pos + len(hit.Word) - 1
		if hit.Pos < 0 || last >= len(f.source) {
			continue
		}
		spans = append(spans, span{from: f.source[hit.Pos], to: f.source[last] + 1})
	}
	return merge(spans)
}

func merge(spans []span) []span {
	if len(spans) < 2 {
		return spans
	}
	slices.SortFunc(spans, func(a, b span) int { return a.from - b.from })
	out := spans[:1]
	for _, s := range spans[1:] {
		if top := &out[len(out)-1]; s.from <= top.to {
			top.to = max(top.to, s.to)
			continue
		}
		out = append(out, s)
	}
	return out
}

func fold(text string) folded {
	runes := []rune(text)
	f := folded{letters: make([]rune, 0, len(runes)), source: make([]int, 0, len(runes))}
	for i, r := range runes {
		if plain, ok := leet[r]; ok {
			r = plain
		}
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		f.letters = append(f.letters, unicode.ToLower(r))
		f.source = append(f.source, i)
	}
	return f
}
