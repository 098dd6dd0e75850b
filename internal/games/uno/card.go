// internal/games/uno/card.go
package uno

import (
	"fmt"
	"strings"
)

type Color string

const (
	Red    Color = "Red"
	Yellow Color = "Yellow"
	Green  Color = "Green"
	Blue   Color = "Blue"
	Wild   Color = "Wild"
)

// Colors are the four playable colours, in deck order.
var Colors = []Color{Red, Yellow, Green, Blue}

type Value string

const (
	Skip         Value = "Skip"
	Reverse      Value = "Reverse"
	DrawTwo      Value = "Draw Two"
	WildCard     Value = "Wild"
	WildDrawFour Value = "Wild Draw Four"
)

// Card is one UNO card. Wild cards carry Color Wild.
type Card struct {
	Color Color `json:"color"`
	Value Value `json:"value"`
}

func (c Card) String() string {
	if c.Color == Wild {
		return string(c.Value)
	}
	return fmt.Sprintf("%s %s", c.Color, c.Value)
}

// IsWild reports whether the player chooses the colour after playing c.
func (c Card) IsWild() bool { return c.Color == Wild }

// IsNumber reports whether c has no effect beyond matching.
func (c Card) IsNumber() bool {
	return len(c.Value) == 1 && c.Value[0] >= '0' && c.Value[0] <= '9'
}

// NewDeck returns the 108 card UNO deck: per colour one 0 and two of each 1-9, Skip, Reverse and
// Draw Two, plus four Wild and four Wild Draw Four.
func NewDeck() []Card {
	deck := make([]Card, 0, 108)
	for _, color := range Colors {
		for _, v := range []Value{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", Skip, Reverse, DrawTwo} {
			deck = append(deck, Card{Color: color, Value: v})
			if v != "0" {
				deck = append(deck, Card{Color: color, Value: v})
			}
		}
	}
	for i := 0; i < 4; i++ {
		deck = append(deck, Card{Color: Wild, Value: WildCard}, Card{Color: Wild, Value: WildDrawFour})
	}
	return deck
}

var colorAliases = map[string]Color{
	"red": Red, "r": Red,
	"yellow": Yellow, "y": Yellow,
	"green": Green, "g": Green,
	"blue": Blue, "b": Blue,
}

var valueAliases = map[string]Value{
	"skip": Skip, "s": Skip,
	"reverse": Reverse, "rev": Reverse,
	"draw two": DrawTwo, "draw 2": DrawTwo, "drawtwo": DrawTwo, "+2": DrawTwo,
}

var wildPrefixes = []struct {
	prefix string
	value  Value
}{
	{"wild draw four", WildDrawFour},
	{"wild draw 4", WildDrawFour},
	{"wild +4", WildDrawFour},
	{"+4", WildDrawFour},
	{"wd4", WildDrawFour},
	{"wild", WildCard},
}

// ParseColor reads a colour name or its initial.
func ParseColor(s string) (Color, bool) {
	c, ok := colorAliases[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

// ParseCard reads what a player typed, e.g. "red 5", "blue skip", "g +2", "wild blue" or
// "+4 red". For wild cards the optional trailing colour is returned as the chosen colour.
func ParseCard(s string) (Card, Color, error) {
	text := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if text == "" {
		return Card{}, "", fmt.Errorf("empty card")
	}

	for _, w := range wildPrefixes {
		if text != w.prefix && !strings.HasPrefix(text, w.prefix+" ") {
			continue
		}
		card := Card{Color: Wild, Value: w.value}
		rest := strings.TrimSpace(strings.TrimPrefix(text, w.prefix))
		if rest == "" {
			return card, "", nil
		}
		chosen, ok := ParseColor(rest)
		if !ok {
			return Card{}, "", fmt.Errorf("unknown colour %q", rest)
		}
		return card, chosen, nil
	}

	fields := strings.SplitN(text, " ", 2)
	color, ok := ParseColor(fields[0])
	if !ok {
		return Card{}, "", fmt.Errorf("unknown colour %q", fields[0])
	}
	if len(fields) < 2 {
		return Card{}, "", fmt.Errorf("missing card value")
	}
	raw := fields[1]
	if len(raw) == 1 && raw[0] >= '0' && raw[0] <= '9' {
		return Card{Color: color, Value: Value(raw)}, "", nil
	}
	v, ok := valueAliases[raw]
	if !ok {
		return Card{}, "", fmt.Errorf("unknown card value %q", raw)
	}
	return Card{Color: color, Value: v}, "", nil
}

// FormatHand renders a hand for a direct message.
func FormatHand(hand []Card) string {
	if len(hand) == 0 {
		return "(empty)"
	}
	parts := make([]string, len(hand))
	for i, c := range hand {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}
