package lrc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const maxCentiseconds = 99*6000 + 59*100 + 99

const floatNudge = 1e-9

// FormatTime renders seconds as mm:ss.hh, truncating to hundredths.
// A nudge of 1e-9 centiseconds is added before truncating so binary float
// error (0.29*100 == 28.999999999999996) does not drop a hundredth; only
// inputs within 1e-11 s below a boundary round up because of it.
// Negative and NaN inputs render as 00:00.00; values past 99:59.99 are clamped.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || seconds <= 0 {
		return "00:00.00"
	}

	var cs int64
	if total := seconds*100 + floatNudge; total >= maxCentiseconds {
		cs = maxCentiseconds
	} else {
		cs = int64(math.Floor(total))
	}

	return fmt.Sprintf("%02d:%02d.%02d", cs/6000, (cs/100)%60, cs%100)
}

// FormatOffsetHeader renders the [offset:...] tag that precedes a corrected
// transcript. The value is in seconds, rounded to milliseconds.
func FormatOffsetHeader(offset float64) string {
	return "[offset:" + signed(offset) + "]\n"
}

func signed(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	v = math.Round(v*1000) / 1000
	if v == 0 {
		return "0"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v > 0 {
		return "+" + s
	}
	return s
}

// RenderRichSync renders word-synced lines as enhanced LRC:
// "[ts] <t> word <t> word ... <te>" per line.
func RenderRichSync(lines []RichLine) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString("[" + FormatTime(line.Start) + "] ")
		for _, w := range line.Words {
			b.WriteString("<" + FormatTime(line.Start+w.Offset) + "> " + w.Text + " ")
		}
		b.WriteString("<" + FormatTime(line.End) + ">\n")
	}
	return b.String()
}

// RichPlainText joins the text of word-synced lines.
func RichPlainText(lines []RichLine) string {
	texts := make([]string, 0, len(lines))
	for _, line := range lines {
		texts = append(texts, line.Text)
	}
	return strings.Join(texts, "\n")
}

// String re-encodes the document as line-synced LRC.
func (d Document) String() string {
	var b strings.Builder
	for _, t := range d.Tags {
		b.WriteString("[" + t.Key + ":" + t.Value + "]\n")
	}
	for _, l := range d.Lines {
		b.WriteString("[" + FormatTime(float64(l.StartMs)/1000) + "]")
		if l.Text != "" {
			b.WriteString(" " + l.Text)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// PlainText joins line texts without timing.
func (d Document) PlainText() string {
	texts := make([]string, 0, len(d.Lines))
	for _, l := range d.Lines {
		texts = append(texts, l.Text)
	}
	return strings.Join(texts, "\n")
}
