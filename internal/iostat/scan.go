package iostat

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// maxLineSize bounds a single report line. dgemm banners can exceed the
// bufio default of 64 KiB.
const maxLineSize = 4 * 1024 * 1024

// Summary holds the report-level values read alongside the observations.
type Summary struct {
	// ReferenceGFlops is diagnostic only; it never affects a verdict.
	ReferenceGFlops float64
	Elapsed         float64
	ElapsedFound    bool
	Lines           int
	State           State
}

// Scan feeds r through a Parser, calling fn for every observation, and
// stops once the elapsed trailer has been read. Input after the trailer
// is left unread.
func Scan(
	ctx context.Context,
	r io.Reader,
	fn func(Observation) error,
) (Summary, error) {
	p := NewParser()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for p.State() != StateDone && scanner.Scan() {
		select {
		case <-ctx.Done():
			return p.summary(), ctx.Err()
		default:
		}

		obs, ok, err := p.Feed(scanner.Text())
		if err != nil {
			return p.summary(), err
		}

		if !ok {
			continue
		}

		if err := fn(obs); err != nil {
			return p.summary(), err
		}
	}

	if err := scanner.Err(); err != nil {
		return p.summary(), fmt.Errorf("reading report: %w", err)
	}

	return p.summary(), nil
}

func (p *Parser) summary() Summary {
	return Summary{
		ReferenceGFlops: p.gflops,
		Elapsed:         p.elapsed,
		ElapsedFound:    p.elapsedFound,
		Lines:           p.line,
		State:           p.state,
	}
}
