package caption

import (
	"fmt"
	"strings"

	"github.com/born-ml/captionvit/internal/nn"
)

// Special tokens.
const (
	NullToken  = "<NULL>"  // padding, required
	StartToken = "<START>" // first token of every sampled caption, optional
	EndToken   = "<END>"   // end of caption, optional
)

// Vocabulary is a bidirectional word ↔ id mapping over the ids [0, V).
type Vocabulary struct {
	wordToIdx map[string]int32
	idxToWord []string
	null      int32
}

// NewVocabulary builds a Vocabulary from a word → id map.
//
// The ids must be exactly 0..len(wordToIdx)-1 and NullToken must be present;
// otherwise the error wraps nn.ErrConfiguration.
func NewVocabulary(wordToIdx map[string]int32) (*Vocabulary, error) {
	idxToWord := make([]string, len(wordToIdx))
	seen := make([]bool, len(wordToIdx))
	for word, id := range wordToIdx {
		if id < 0 || int(id) >= len(wordToIdx) {
			return nil, fmt.Errorf("%w: vocabulary id %d of %q outside [0, %d)",
				nn.ErrConfiguration, id, word, len(wordToIdx))
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: vocabulary id %d assigned to both %q and %q",
				nn.ErrConfiguration, id, idxToWord[id], word)
		}
		seen[id] = true
		idxToWord[id] = word
	}

	null, ok := wordToIdx[NullToken]
	if !ok {
		return nil, fmt.Errorf("%w: vocabulary has no %s token", nn.ErrConfiguration, NullToken)
	}

	words := make(map[string]int32, len(wordToIdx))
	for w, id := range wordToIdx {
		words[w] = id
	}
	return &Vocabulary{wordToIdx: words, idxToWord: idxToWord, null: null}, nil
}

// Size returns the number of tokens V.
func (v *Vocabulary) Size() int {
	return len(v.idxToWord)
}

// ID returns the id of word.
func (v *Vocabulary) ID(word string) (int32, bool) {
	id, ok := v.wordToIdx[word]
	return id, ok
}

// Word returns the word of id, or "" if id is out of range.
func (v *Vocabulary) Word(id int32) string {
	if id < 0 || int(id) >= len(v.idxToWord) {
		return ""
	}
	return v.idxToWord[id]
}

// Null returns the padding id.
func (v *Vocabulary) Null() int32 {
	return v.null
}

// Start returns the start id, if the vocabulary has one.
func (v *Vocabulary) Start() (int32, bool) {
	return v.ID(StartToken)
}

// End returns the end id, if the vocabulary has one.
func (v *Vocabulary) End() (int32, bool) {
	return v.ID(EndToken)
}

// Decode maps ids to words. NULL tokens are skipped and decoding stops
// after the first END token (which is kept).
func (v *Vocabulary) Decode(ids []int32) []string {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == v.null {
			continue
		}
		word := v.Word(id)
		words = append(words, word)
		if word == EndToken {
			break
		}
	}
	return words
}

// DecodeString joins Decode(ids) with spaces.
func (v *Vocabulary) DecodeString(ids []int32) string {
	return strings.Join(v.Decode(ids), " ")
}
