package align

import (
	"strings"

	"github.com/MimeLyc/synced-lyrics/internal/lrc"
	"golang.org/x/text/cases"
)

const (
	DefaultVarianceThreshold = 1.5
	DefaultMaxEditLength     = 2000
)

// DebugRun is a diff run rendered for debug output.
type DebugRun struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

// Result is the outcome of aligning a rich transcript against a basic one.
// Offset is the correction in seconds to apply to the rich transcript and is
// zero unless Accepted. Variance is meaningless when Samples is zero.
type Result struct {
	Offset    float64    `json:"offset"`
	Mean      float64    `json:"mean"`
	Variance  float64    `json:"variance"`
	Samples   int        `json:"samples"`
	Accepted  bool       `json:"accepted"`
	Truncated bool       `json:"truncated,omitempty"`
	Deltas    []float64  `json:"deltas,omitempty"`
	Runs      []DebugRun `json:"diff,omitempty"`
}

// Judge re-evaluates acceptance against a different threshold.
func (r Result) Judge(threshold float64) Result {
	r.Accepted = r.Samples > 0 && r.Variance < threshold
	r.Offset = 0
	if r.Accepted {
		r.Offset = r.Mean
	}
	return r
}

type Aligner struct {
	threshold     float64
	maxEditLength int
}

type Option func(*Aligner)

// WithThreshold sets the variance (s²) below which an offset is accepted.
func WithThreshold(threshold float64) Option {
	return func(a *Aligner) {
		if threshold > 0 {
			a.threshold = threshold
		}
	}
}

// WithMaxEditLength bounds diff work; 0 means unbounded.
func WithMaxEditLength(n int) Option {
	return func(a *Aligner) {
		if n >= 0 {
			a.maxEditLength = n
		}
	}
}

func New(opts ...Option) *Aligner {
	a := &Aligner{
		threshold:     DefaultVarianceThreshold,
		maxEditLength: DefaultMaxEditLength,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aligner) Threshold() float64 {
	return a.threshold
}

// Align estimates the offset between a word-synced transcript and a
// line-synced transcript of the same song.
func (a *Aligner) Align(rich []lrc.RichLine, basic []lrc.Line) Result {
	return a.AlignTokens(TokenizeRich(rich), TokenizeBasic(basic))
}

// AlignTokens aligns pre-tokenized streams. Samples are rich minus basic
// times of matched tokens that are both timed.
func (a *Aligner) AlignTokens(rich, basic []Token) Result {
	fold := cases.Fold()
	basicKeys := foldAll(fold, basic)
	richKeys := foldAll(fold, rich)

	runs, ok := diff(len(basic), len(rich), func(i, j int) bool {
		return basicKeys[i] == richKeys[j]
	}, a.maxEditLength)
	if !ok {
		return Result{Truncated: true}
	}

	var deltas []float64
	debug := make([]DebugRun, 0, len(runs))
	for _, run := range runs {
		switch run.Op {
		case OpMatch:
			for i := 0; i < run.Count; i++ {
				l, r := basic[run.A+i], rich[run.B+i]
				if l.Timed && r.Timed {
					deltas = append(deltas, r.Time-l.Time)
				}
			}
			debug = append(debug, DebugRun{Op: run.Op.String(), Text: joinTokens(basic[run.A : run.A+run.Count])})
		case OpRemove:
			debug = append(debug, DebugRun{Op: run.Op.String(), Text: joinTokens(basic[run.A : run.A+run.Count])})
		case OpAdd:
			debug = append(debug, DebugRun{Op: run.Op.String(), Text: joinTokens(rich[run.B : run.B+run.Count])})
		}
	}

	res := Result{
		Samples: len(deltas),
		Deltas:  deltas,
		Runs:    debug,
	}
	if len(deltas) > 0 {
		res.Mean, res.Variance = meanAndVariance(deltas)
	}
	return res.Judge(a.threshold)
}

func foldAll(fold cases.Caser, tokens []Token) []string {
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = fold.String(t.Text)
	}
	return keys
}

func joinTokens(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

// meanAndVariance returns the mean and population variance. xs must be non-empty.
func meanAndVariance(xs []float64) (mean, variance float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return mean, variance
}
