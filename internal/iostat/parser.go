// Package iostat reads the text report printed by
// `amplxe-perf stat --iostat=upi` around a dgemm run and turns it into
// directed UPI link observations.
package iostat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethpandaops/upicheck/internal/topology"
)

const (
	summaryHeaderPrefix = "CPU-Node"
	summaryRowPrefix    = "0 - 1"
	linkPrefix          = "UPI Link"

	// DefaultElapsed is the elapsed time assumed when the report has no
	// "seconds time elapsed" trailer.
	DefaultElapsed = 10.0

	// minLinkFields is the token count of a link line, e.g.
	// "UPI Link 0 on Socket 0 -> UPI Link 1 on Socket 1   158   101".
	minLinkFields = 15
)

// State is the position of the parser within the report.
type State uint8

const (
	// StateSeekingHeader looks for the dgemm "CPU-Node" header.
	StateSeekingHeader State = iota
	// StateSeekingSummaryRow looks for the first per-node GFlops row.
	StateSeekingSummaryRow
	// StateSeekingLinks collects link lines until the elapsed trailer.
	StateSeekingLinks
	// StateDone means the trailer was read; further input is ignored.
	StateDone
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateSeekingHeader:
		return "seeking_header"
	case StateSeekingSummaryRow:
		return "seeking_summary_row"
	case StateSeekingLinks:
		return "seeking_links"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Observation is one directed link sample.
type Observation struct {
	From         topology.Port
	To           topology.Port
	DataBytes    int64
	NonDataBytes int64
}

// Key identifies the directed endpoint pair of the observation.
func (o Observation) Key() string {
	return fmt.Sprintf(
		"die_%d,upi_%d,die_%d,upi_%d",
		o.From.Socket, o.From.Link, o.To.Socket, o.To.Link,
	)
}

// ParseError reports a report line that could not be decoded.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed report line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser is a line-at-a-time state machine over the report.
// The zero value is not usable; call NewParser.
type Parser struct {
	state        State
	line         int
	gflops       float64
	elapsed      float64
	elapsedFound bool
}

// NewParser returns a parser in StateSeekingHeader.
func NewParser() *Parser {
	return &Parser{
		state:   StateSeekingHeader,
		elapsed: DefaultElapsed,
	}
}

// State returns the current parser state.
func (p *Parser) State() State {
	return p.state
}

// ReferenceGFlops returns the dgemm GFlops of the first node pair, or 0
// when the summary row was never found or could not be read.
func (p *Parser) ReferenceGFlops() float64 {
	return p.gflops
}

// Elapsed returns the elapsed seconds from the trailer, or
// DefaultElapsed when the trailer has not been read.
func (p *Parser) Elapsed() float64 {
	return p.elapsed
}

// ElapsedFound reports whether the elapsed trailer was read.
func (p *Parser) ElapsedFound() bool {
	return p.elapsedFound
}

// Feed consumes one line. It returns the observation carried by the line,
// if any. A malformed link or trailer line yields a *ParseError.
func (p *Parser) Feed(raw string) (Observation, bool, error) {
	p.line++

	if p.state == StateDone {
		return Observation{}, false, nil
	}

	line := strings.Trim(raw, "\n\r ")
	if line == "" {
		return Observation{}, false, nil
	}

	switch p.state {
	case StateSeekingHeader:
		if strings.HasPrefix(line, summaryHeaderPrefix) {
			p.state = StateSeekingSummaryRow

			return Observation{}, false, nil
		}
	case StateSeekingSummaryRow:
		if strings.HasPrefix(line, summaryRowPrefix) {
			p.readSummaryRow(line)
			p.state = StateSeekingLinks

			return Observation{}, false, nil
		}
	}

	// Reports without a dgemm summary still carry link counters.
	if p.state != StateSeekingLinks && strings.HasPrefix(line, linkPrefix) {
		p.state = StateSeekingLinks
	}

	if p.state != StateSeekingLinks {
		return Observation{}, false, nil
	}

	fields := strings.Fields(line)

	if strings.HasPrefix(line, linkPrefix) {
		obs, err := parseLink(fields)
		if err != nil {
			return Observation{}, false, p.errorf(line, err)
		}

		return obs, true, nil
	}

	if len(fields) >= 4 && fields[2] == "time" && fields[3] == "elapsed" {
		elapsed, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Observation{}, false, p.errorf(line, fmt.Errorf("parsing elapsed time: %w", err))
		}

		p.elapsed = elapsed
		p.elapsedFound = true
		p.state = StateDone
	}

	return Observation{}, false, nil
}

func (p *Parser) readSummaryRow(line string) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return
	}

	gflops, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return
	}

	p.gflops = gflops
}

func (p *Parser) errorf(line string, err error) error {
	return &ParseError{Line: p.line, Text: line, Err: err}
}

func parseLink(fields []string) (Observation, error) {
	if len(fields) < minLinkFields {
		return Observation{}, fmt.Errorf(
			"expected at least %d fields, got %d", minLinkFields, len(fields),
		)
	}

	var (
		ints = [6]int64{}
		idx  = [6]int{2, 5, 9, 12, 13, 14}
	)

	for i, pos := range idx {
		v, err := strconv.ParseInt(fields[pos], 10, 64)
		if err != nil {
			return Observation{}, fmt.Errorf("parsing field %d: %w", pos, err)
		}

		ints[i] = v
	}

	return Observation{
		From:         topology.Port{Socket: int(ints[1]), Link: int(ints[0])},
		To:           topology.Port{Socket: int(ints[3]), Link: int(ints[2])},
		DataBytes:    ints[4],
		NonDataBytes: ints[5],
	}, nil
}
