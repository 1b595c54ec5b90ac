package resolver

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MimeLyc/synced-lyrics/internal/align"
	"github.com/MimeLyc/synced-lyrics/internal/errs"
	"github.com/MimeLyc/synced-lyrics/internal/lrc"
	"github.com/MimeLyc/synced-lyrics/internal/musixmatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bohemianLRC = `[ti:Bohemian Rhapsody]
[ar:Queen]
[00:01.00] Is this the real life?
[00:05.00] Is this just fantasy?
[00:09.50] Caught in a landslide
[00:13.00] No escape from reality
`

type fakeUpstream struct {
	track    musixmatch.Track
	matchErr error
	basic    string
	basicErr error
	rich     []lrc.RichLine
	richErr  error

	subtitleCalls atomic.Int32
	richCalls     atomic.Int32
}

func (f *fakeUpstream) MatchTrack(context.Context, musixmatch.MatchQuery) (musixmatch.Track, error) {
	return f.track, f.matchErr
}

func (f *fakeUpstream) Subtitle(context.Context, int64) (string, error) {
	f.subtitleCalls.Add(1)
	return f.basic, f.basicErr
}

func (f *fakeUpstream) RichSync(context.Context, int64) ([]lrc.RichLine, error) {
	f.richCalls.Add(1)
	return f.rich, f.richErr
}

// richFrom builds a word-synced transcript from LRC lines shifted by shift seconds.
func richFrom(text string, shift float64) []lrc.RichLine {
	doc := lrc.Parse(text)
	out := make([]lrc.RichLine, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		start := float64(l.StartMs)/1000 + shift
		var words []lrc.RichWord
		for i, w := range strings.Fields(l.Text) {
			if i > 0 {
				words = append(words, lrc.RichWord{Text: " ", Offset: float64(i)*0.35 - 0.05})
			}
			words = append(words, lrc.RichWord{Text: w, Offset: float64(i) * 0.35})
		}
		out = append(out, lrc.RichLine{Start: start, End: start + 3.5, Words: words, Text: l.Text})
	}
	return out
}

func queenTrack(rich, subtitles bool) musixmatch.Track {
	t := musixmatch.Track{TrackID: 84906, TrackName: "Bohemian Rhapsody", ArtistName: "Queen", HasLyrics: 1}
	if rich {
		t.HasRichSync = 1
	}
	if subtitles {
		t.HasSubtitles = 1
	}
	return t
}

var queenQuery = Query{Artist: "Queen", Track: "Bohemian Rhapsody", Enhanced: true}

func TestResolve_RichAcceptedWithOffsetHeader(t *testing.T) {
	up := &fakeUpstream{
		track: queenTrack(true, true),
		basic: bohemianLRC,
		rich:  richFrom(bohemianLRC, 0.25),
	}

	res, err := New(up, nil).Resolve(context.Background(), queenQuery)
	require.NoError(t, err)

	assert.Equal(t, TierRichSync, res.Tier)
	assert.True(t, strings.HasPrefix(res.RichSynced, "[offset:+0.25]\n"), res.RichSynced)
	assert.Contains(t, res.RichSynced, "[00:01.25] <00:01.25> Is")
	assert.Empty(t, res.Synced)
	require.NotNil(t, res.Alignment)
	assert.True(t, res.Alignment.Accepted)
	assert.InDelta(t, 0.25, res.Alignment.Offset, 1e-9)
	assert.Equal(t, int32(1), up.subtitleCalls.Load())
	assert.Equal(t, int32(1), up.richCalls.Load())
}

func TestResolve_HighVarianceFallsBackToBasic(t *testing.T) {
	rich := richFrom(bohemianLRC, 0)
	rich[1].Start += 9
	rich[3].Start -= 7
	up := &fakeUpstream{track: queenTrack(true, true), basic: bohemianLRC, rich: rich}

	res, err := New(up, nil).Resolve(context.Background(), queenQuery)
	require.NoError(t, err)

	assert.Equal(t, TierBasicSync, res.Tier)
	assert.Equal(t, bohemianLRC, res.Synced)
	assert.Empty(t, res.RichSynced)
	assert.NotContains(t, res.Synced, "[offset:")
	require.NotNil(t, res.Alignment)
	assert.False(t, res.Alignment.Accepted)
	assert.Greater(t, res.Alignment.Variance, align.DefaultVarianceThreshold)
}

func TestResolve_BasicOnly(t *testing.T) {
	up := &fakeUpstream{track: queenTrack(false, true), basic: bohemianLRC}

	res, err := New(up, nil).Resolve(context.Background(), queenQuery)
	require.NoError(t, err)

	assert.Equal(t, TierBasicSync, res.Tier)
	assert.Equal(t, bohemianLRC, res.Synced)
	assert.Nil(t, res.Alignment)
	assert.True(t, strings.HasPrefix(res.Unsynced, "Is this the real life?\n"))
	assert.Zero(t, up.richCalls.Load())
}

func TestResolve_NoLyrics(t *testing.T) {
	up := &fakeUpstream{track: queenTrack(false, false)}

	res, err := New(up, nil).Resolve(context.Background(), queenQuery)

	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoLyrics)
	assert.True(t, errs.Is(err, errs.NotFound))
	assert.Zero(t, up.subtitleCalls.Load())
}

func TestResolve_NotEnhancedSkipsRichSync(t *testing.T) {
	up := &fakeUpstream{track: queenTrack(true, true), basic: bohemianLRC, rich: richFrom(bohemianLRC, 0)}

	q := queenQuery
	q.Enhanced = false
	res, err := New(up, nil).Resolve(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, TierBasicSync, res.Tier)
	assert.Zero(t, up.richCalls.Load())
}

func TestResolve_RichWithoutBasicIsUnmodified(t *testing.T) {
	rich := richFrom(bohemianLRC, 0.4)
	up := &fakeUpstream{
		track:    queenTrack(true, false),
		basicErr: errors.New("no subtitle"),
		rich:     rich,
	}

	res, err := New(up, nil).Resolve(context.Background(), queenQuery)
	require.NoError(t, err)

	assert.Equal(t, TierRichSync, res.Tier)
	assert.Equal(t, lrc.RenderRichSync(rich), res.RichSynced)
	assert.Nil(t, res.Alignment)
}

func TestResolve_RichFailureFallsBackToBasic(t *testing.T) {
	up := &fakeUpstream{
		track:   queenTrack(true, true),
		basic:   bohemianLRC,
		richErr: errs.New(errs.Protocol, "malformed richsync_body"),
	}

	res, err := New(up, nil).Resolve(context.Background(), queenQuery)
	require.NoError(t, err)
	assert.Equal(t, TierBasicSync, res.Tier)
	assert.Equal(t, bohemianLRC, res.Synced)

	up.basicErr = errs.New(errs.Transport, "down")
	_, err = New(up, nil).Resolve(context.Background(), queenQuery)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Transport))
}

func TestResolve_BasicHintReplacesFetch(t *testing.T) {
	up := &fakeUpstream{track: queenTrack(true, true), rich: richFrom(bohemianLRC, -0.5)}

	q := queenQuery
	q.BasicHint = bohemianLRC
	res, err := New(up, nil).Resolve(context.Background(), q)
	require.NoError(t, err)

	assert.Zero(t, up.subtitleCalls.Load())
	assert.True(t, strings.HasPrefix(res.RichSynced, "[offset:-0.5]\n"))
}

func TestResolve_ThresholdOverride(t *testing.T) {
	rich := richFrom(bohemianLRC, 0)
	rich[1].Start += 2
	up := &fakeUpstream{track: queenTrack(true, true), basic: bohemianLRC, rich: rich}

	strict, err := New(up, nil).Resolve(context.Background(), Query{Artist: "Queen", Track: "Bohemian Rhapsody", Enhanced: true, VarianceThreshold: 0.01})
	require.NoError(t, err)
	assert.Equal(t, TierBasicSync, strict.Tier)

	lenient, err := New(up, nil).Resolve(context.Background(), Query{Artist: "Queen", Track: "Bohemian Rhapsody", Enhanced: true, VarianceThreshold: 100})
	require.NoError(t, err)
	assert.Equal(t, TierRichSync, lenient.Tier)
}

func TestResolve_MatchErrorPropagates(t *testing.T) {
	up := &fakeUpstream{matchErr: errs.New(errs.Protocol, "authorization failed after session refresh")}

	_, err := New(up, nil).Resolve(context.Background(), queenQuery)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Protocol))
}

func TestResolve_BasicHintServesBasicPath(t *testing.T) {
	up := &fakeUpstream{track: queenTrack(false, true), basic: "[00:09.00] other\n"}

	q := queenQuery
	q.BasicHint = bohemianLRC
	res, err := New(up, nil).Resolve(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, TierBasicSync, res.Tier)
	assert.Equal(t, bohemianLRC, res.Synced)
	assert.Zero(t, up.subtitleCalls.Load())
}
