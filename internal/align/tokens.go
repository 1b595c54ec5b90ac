package align

import (
	"github.com/MimeLyc/synced-lyrics/internal/lrc"
	"github.com/rivo/uniseg"
)

// LineBreak is the text of the untimed token emitted after every line.
const LineBreak = "\n"

// Token is one grapheme of a transcript. Only the first grapheme of a word
// (rich) or line (basic) carries a time.
type Token struct {
	Text  string
	Time  float64
	Timed bool
}

// TokenizeRich splits word-synced lines into tokens timed at line start plus word offset.
func TokenizeRich(lines []lrc.RichLine) []Token {
	var tokens []Token
	for _, line := range lines {
		for _, w := range line.Words {
			tokens = appendGraphemes(tokens, w.Text, line.Start+w.Offset)
		}
		tokens = append(tokens, Token{Text: LineBreak})
	}
	return tokens
}

// TokenizeBasic splits line-synced lines into tokens timed at the line start.
func TokenizeBasic(lines []lrc.Line) []Token {
	var tokens []Token
	for _, line := range lines {
		tokens = appendGraphemes(tokens, line.Text, float64(line.StartMs)/1000)
		tokens = append(tokens, Token{Text: LineBreak})
	}
	return tokens
}

func appendGraphemes(tokens []Token, text string, at float64) []Token {
	first := true
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		tok := Token{Text: g.Str()}
		if first {
			tok.Time = at
			tok.Timed = true
			first = false
		}
		tokens = append(tokens, tok)
	}
	return tokens
}
