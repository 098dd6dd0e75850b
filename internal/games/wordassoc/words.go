// internal/games/wordassoc/words.go
package wordassoc

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Word is one secret word and the hint its describer gets with it.
type Word struct {
	Word string `json:"word"`
	Hint string `json:"hint"`
}

// BuiltinWords are used when no word list file is configured.
var BuiltinWords = []Word{
	{Word: "apple", Hint: "A fruit that keeps the doctor away"},
	{Word: "ocean", Hint: "A very large body of salt water"},
	{Word: "guitar", Hint: "Six strings and a sound hole"},
	{Word: "volcano", Hint: "A mountain with a temper"},
	{Word: "library", Hint: "Quiet place full of books"},
	{Word: "penguin", Hint: "A bird in a tuxedo that cannot fly"},
	{Word: "rainbow", Hint: "Seven colours after the rain"},
	{Word: "pyramid", Hint: "Ancient tomb with four triangular sides"},
	{Word: "telescope", Hint: "Brings faraway stars closer"},
	{Word: "compass", Hint: "Always knows where north is"},
	{Word: "candle", Hint: "Wax, a wick and a small flame"},
	{Word: "bridge", Hint: "Gets you across a river"},
	{Word: "astronaut", Hint: "Works where there is no air"},
	{Word: "chocolate", Hint: "Sweet treat made from cocoa"},
	{Word: "lighthouse", Hint: "Warns ships away from the rocks"},
	{Word: "umbrella", Hint: "Opens up when the weather turns"},
	{Word: "dragon", Hint: "Breathes fire in the old stories"},
	{Word: "snowman", Hint: "Carrot nose, coal eyes"},
	{Word: "keyboard", Hint: "You are probably touching one right now"},
	{Word: "passport", Hint: "Needed to cross borders"},
}

// LoadWords reads a JSON word list of the form [{"word": "...", "hint": "..."}].
func LoadWords(path string) ([]Word, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read word list %s: %w", path, err)
	}
	return ParseWords(data)
}

// ParseWords decodes a JSON word list, dropping entries without a word.
func ParseWords(data []byte) ([]Word, error) {
	var raw []Word
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid word list: %w", err)
	}
	words := make([]Word, 0, len(raw))
	for _, w := range raw {
		w.Word = strings.TrimSpace(w.Word)
		if w.Word == "" {
			continue
		}
		words = append(words, w)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("word list is empty")
	}
	return words, nil
}
