package align

import (
	"strings"
	"testing"

	"github.com/MimeLyc/synced-lyrics/internal/lrc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func richFromBasic(lines []lrc.Line, shift float64) []lrc.RichLine {
	out := make([]lrc.RichLine, 0, len(lines))
	for _, l := range lines {
		start := float64(l.StartMs)/1000 + shift
		var words []lrc.RichWord
		for i, w := range strings.Fields(l.Text) {
			if i > 0 {
				words = append(words, lrc.RichWord{Text: " ", Offset: float64(i)*0.4 - 0.1})
			}
			words = append(words, lrc.RichWord{Text: w, Offset: float64(i) * 0.4})
		}
		out = append(out, lrc.RichLine{Start: start, End: start + 3, Words: words, Text: l.Text})
	}
	return out
}

var bohemian = []lrc.Line{
	{StartMs: 1000, Text: "Is this the real life?"},
	{StartMs: 5000, Text: "Is this just fantasy?"},
	{StartMs: 9500, Text: "Caught in a landslide"},
	{StartMs: 13000, Text: "No escape from reality"},
}

func TestTokenize(t *testing.T) {
	basic := TokenizeBasic([]lrc.Line{{StartMs: 1500, Text: "Hé"}})
	require.Len(t, basic, 3)
	assert.Equal(t, Token{Text: "H", Time: 1.5, Timed: true}, basic[0])
	assert.Equal(t, Token{Text: "é"}, basic[1])
	assert.Equal(t, Token{Text: LineBreak}, basic[2])

	rich := TokenizeRich([]lrc.RichLine{{Start: 2, Words: []lrc.RichWord{{Text: "ab", Offset: 0.5}}}})
	require.Len(t, rich, 3)
	assert.Equal(t, Token{Text: "a", Time: 2.5, Timed: true}, rich[0])
	assert.False(t, rich[1].Timed)
}

func TestTokenize_GraphemeClusters(t *testing.T) {
	// e + combining acute accent is one grapheme.
	tokens := TokenizeBasic([]lrc.Line{{Text: "e\u0301x"}})
	require.Len(t, tokens, 3)
	assert.Equal(t, "e\u0301", tokens[0].Text)
}

func TestAlign_IdenticalStreams(t *testing.T) {
	tokens := TokenizeBasic(bohemian)

	res := New().AlignTokens(tokens, tokens)

	assert.Equal(t, len(bohemian), res.Samples)
	assert.Zero(t, res.Offset)
	assert.Zero(t, res.Variance)
	assert.True(t, res.Accepted)
	require.Len(t, res.Runs, 1)
	assert.Equal(t, "MATCH", res.Runs[0].Op)
}

func TestAlign_ConstantShift(t *testing.T) {
	res := New().Align(richFromBasic(bohemian, 0.25), bohemian)

	require.Greater(t, res.Samples, 0)
	assert.True(t, res.Accepted)
	assert.InDelta(t, 0.25, res.Offset, 1e-9)
	assert.InDelta(t, 0, res.Variance, 1e-9)
}

func TestAlign_CaseInsensitive(t *testing.T) {
	upper := make([]lrc.Line, len(bohemian))
	for i, l := range bohemian {
		upper[i] = lrc.Line{StartMs: l.StartMs, Text: strings.ToUpper(l.Text)}
	}

	res := New().Align(richFromBasic(bohemian, 0), upper)

	assert.Equal(t, 4, res.Samples)
	assert.True(t, res.Accepted)
}

func TestAlign_NoSamplesNotAccepted(t *testing.T) {
	rich := []lrc.RichLine{{Start: 1, Words: []lrc.RichWord{{Text: "xyz"}}}}
	basic := []lrc.Line{{StartMs: 1000, Text: "abc"}}

	res := New().Align(rich, basic)

	assert.Zero(t, res.Samples)
	assert.False(t, res.Accepted)
	assert.Zero(t, res.Offset)

	empty := New().Align(nil, nil)
	assert.Zero(t, empty.Samples)
	assert.False(t, empty.Accepted)
}

func TestAlign_HighVarianceRejected(t *testing.T) {
	rich := richFromBasic(bohemian, 0)
	rich[1].Start += 8
	rich[3].Start -= 6

	res := New().Align(rich, bohemian)

	assert.Equal(t, 4, res.Samples)
	assert.Greater(t, res.Variance, DefaultVarianceThreshold)
	assert.False(t, res.Accepted)
	assert.Zero(t, res.Offset)

	lenient := res.Judge(100)
	assert.True(t, lenient.Accepted)
	assert.InDelta(t, lenient.Mean, lenient.Offset, 1e-12)
}

func TestAlign_PartialOverlap(t *testing.T) {
	basic := append([]lrc.Line{{StartMs: 0, Text: "Ooh chatter"}}, bohemian...)
	rich := richFromBasic(bohemian, 0.5)

	res := New().Align(rich, basic)

	assert.True(t, res.Accepted)
	assert.InDelta(t, 0.5, res.Offset, 1e-9)
	ops := make([]string, 0, len(res.Runs))
	for _, r := range res.Runs {
		ops = append(ops, r.Op)
	}
	assert.Contains(t, ops, "REMOVED")
}

func TestAlign_EditBudgetExceeded(t *testing.T) {
	rich := []lrc.RichLine{{Start: 0, Words: []lrc.RichWord{{Text: "aaaaaaaaaa"}}}}
	basic := []lrc.Line{{StartMs: 0, Text: "bbbbbbbbbb"}}

	res := New(WithMaxEditLength(3)).Align(rich, basic)

	assert.True(t, res.Truncated)
	assert.Zero(t, res.Samples)
	assert.False(t, res.Accepted)
}

func TestMeanAndVariance(t *testing.T) {
	mean, variance := meanAndVariance([]float64{1, 2, 3, 4})
	assert.InDelta(t, 2.5, mean, 1e-12)
	assert.InDelta(t, 1.25, variance, 1e-12)
}
