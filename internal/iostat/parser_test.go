package iostat

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/upicheck/internal/topology"
)

func collect(t *testing.T, input string) ([]Observation, Summary, error) {
	t.Helper()

	var got []Observation

	summary, err := Scan(context.Background(), strings.NewReader(input), func(o Observation) error {
		got = append(got, o)

		return nil
	})

	return got, summary, err
}

func TestScan_SampleReport(t *testing.T) {
	data, err := os.ReadFile("testdata/dgemm_upi.txt")
	require.NoError(t, err)

	obs, summary, err := collect(t, string(data))
	require.NoError(t, err)

	require.Len(t, obs, 8)
	assert.Equal(t, Observation{
		From:         topology.Port{Socket: 0, Link: 0},
		To:           topology.Port{Socket: 1, Link: 1},
		DataBytes:    158,
		NonDataBytes: 101,
	}, obs[0])
	assert.Equal(t, Observation{
		From:         topology.Port{Socket: 1, Link: 3},
		To:           topology.Port{Socket: 0, Link: 3},
		DataBytes:    156,
		NonDataBytes: 113,
	}, obs[7])

	assert.InDelta(t, 2310.058, summary.ReferenceGFlops, 1e-9)
	assert.InDelta(t, 10.543947599, summary.Elapsed, 1e-9)
	assert.True(t, summary.ElapsedFound)
	assert.Equal(t, StateDone, summary.State)
}

func TestParser_StateTransitions(t *testing.T) {
	p := NewParser()
	assert.Equal(t, StateSeekingHeader, p.State())

	// A summary row before the header is ignored.
	_, _, err := p.Feed("  0 - 1 : 99.0  1 1 1 1% 1")
	require.NoError(t, err)
	assert.Equal(t, StateSeekingHeader, p.State())
	assert.Zero(t, p.ReferenceGFlops())

	_, _, err = p.Feed("CPU-Node  GFlops  EcartType")
	require.NoError(t, err)
	assert.Equal(t, StateSeekingSummaryRow, p.State())

	_, _, err = p.Feed("some unrelated line")
	require.NoError(t, err)
	assert.Equal(t, StateSeekingSummaryRow, p.State())

	_, _, err = p.Feed("  0 - 1 : 1234.5     60.521   3760")
	require.NoError(t, err)
	assert.Equal(t, StateSeekingLinks, p.State())
	assert.InDelta(t, 1234.5, p.ReferenceGFlops(), 1e-9)

	obs, ok, err := p.Feed("UPI Link 2 on Socket 1 -> UPI Link 2 on Socket 0    7    3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "die_1,upi_2,die_0,upi_2", obs.Key())

	_, _, err = p.Feed("   4.5 seconds time elapsed")
	require.NoError(t, err)
	assert.Equal(t, StateDone, p.State())
	assert.InDelta(t, 4.5, p.Elapsed(), 1e-9)

	// Nothing is read after the trailer.
	_, ok, err = p.Feed("UPI Link 0 on Socket 0 -> UPI Link 1 on Socket 1 not numbers")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParser_MalformedSummaryRowKeepsPlaceholder(t *testing.T) {
	p := NewParser()

	for _, line := range []string{"CPU-Node", "0 - 1 : n/a", "UPI Link 0 on Socket 0 -> UPI Link 1 on Socket 1 1 1"} {
		_, _, err := p.Feed(line)
		require.NoError(t, err)
	}

	assert.Zero(t, p.ReferenceGFlops())
	assert.Equal(t, StateSeekingLinks, p.State())
}

func TestParser_LinksWithoutSummary(t *testing.T) {
	input := strings.Join([]string{
		" Performance counter stats for 'system wide':",
		"UPI Link 0 on Socket 0 -> UPI Link 1 on Socket 1   160   100",
		"UPI Link 1 on Socket 1 -> UPI Link 0 on Socket 0   150   90",
		"  10.0 seconds time elapsed",
	}, "\n")

	obs, summary, err := collect(t, input)
	require.NoError(t, err)

	assert.Len(t, obs, 2)
	assert.Zero(t, summary.ReferenceGFlops)
	assert.InDelta(t, 10.0, summary.Elapsed, 1e-9)
}

func TestParser_MissingTrailerUsesDefaultElapsed(t *testing.T) {
	obs, summary, err := collect(t, "UPI Link 0 on Socket 0 -> UPI Link 1 on Socket 1 1 2\n")
	require.NoError(t, err)

	assert.Len(t, obs, 1)
	assert.False(t, summary.ElapsedFound)
	assert.InDelta(t, DefaultElapsed, summary.Elapsed, 1e-9)
	assert.Equal(t, StateSeekingLinks, summary.State)
}

func TestParser_ShortLinesIgnored(t *testing.T) {
	input := "UPI Link 0 on Socket 0 -> UPI Link 1 on Socket 1 1 2\n#\nfoo bar\n 3 seconds time elapsed\n"

	obs, summary, err := collect(t, input)
	require.NoError(t, err)
	assert.Len(t, obs, 1)
	assert.InDelta(t, 3.0, summary.Elapsed, 1e-9)
}

func TestParser_MalformedLinkLine(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "too few fields", line: "UPI Link 0 on Socket 0 -> UPI Link 1 on Socket 1 158"},
		{name: "non integer data", line: "UPI Link 0 on Socket 0 -> UPI Link 1 on Socket 1 15.8 101"},
		{name: "non integer socket", line: "UPI Link 0 on Socket x -> UPI Link 1 on Socket 1 158 101"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := collect(t, "CPU-Node\n0 - 1 : 1\n"+tt.line+"\n")
			require.Error(t, err)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, 3, parseErr.Line)
			assert.Contains(t, err.Error(), "malformed report line 3")
		})
	}
}

func TestParser_MalformedElapsed(t *testing.T) {
	_, _, err := collect(t, "UPI Link 0 on Socket 0 -> UPI Link 1 on Socket 1 1 2\nabc seconds time elapsed\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing elapsed time")
}

func TestScan_CallbackErrorStops(t *testing.T) {
	sentinel := errors.New("stop")
	calls := 0

	_, err := Scan(context.Background(), strings.NewReader(
		"UPI Link 0 on Socket 0 -> UPI Link 1 on Socket 1 1 2\n"+
			"UPI Link 1 on Socket 0 -> UPI Link 0 on Socket 1 1 2\n",
	), func(Observation) error {
		calls++

		return sentinel
	})

	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestScan_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Scan(ctx, strings.NewReader("line\n"), func(Observation) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestScan_LongLines(t *testing.T) {
	long := strings.Repeat("x", 256*1024)
	input := "UPI Link 0 on Socket 0 -> UPI Link 1 on Socket 1 1 2\n" + long + "\n 3 seconds time elapsed\n"

	obs, summary, err := collect(t, input)
	require.NoError(t, err)
	assert.Len(t, obs, 1)
	assert.True(t, summary.ElapsedFound)

	_, _, err = collect(t, strings.Repeat("y", maxLineSize+1)+"\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading report")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "seeking_header", StateSeekingHeader.String())
	assert.Equal(t, "seeking_summary_row", StateSeekingSummaryRow.String())
	assert.Equal(t, "seeking_links", StateSeekingLinks.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "unknown(9)", State(9).String())
}
