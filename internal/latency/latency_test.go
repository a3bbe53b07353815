package latency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutput = `Intel(R) Memory Latency Checker - v3.10
Command line parameters: --latency_matrix -b100000

Using buffer size of 97.656MiB
Measuring idle latencies for sequential access (in ns)...
                Numa node
Numa node            0       1
       0         117.2   201.9
       1         200.7   115.0
`

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestParseRow(t *testing.T) {
	values, err := ParseRow(strings.NewReader(sampleOutput))
	require.NoError(t, err)

	assert.Equal(t, []string{"117", "201"}, values)
}

func TestParseRow_SkipsOtherNodes(t *testing.T) {
	input := "       1         200.7   115.0\n       0    90.1  150  180.9\n"

	values, err := ParseRow(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"90", "150", "180"}, values)
}

func TestParseRow_NotFound(t *testing.T) {
	_, err := ParseRow(strings.NewReader("Intel(R) Memory Latency Checker - v3.10\n"))
	require.ErrorIs(t, err, ErrRowNotFound)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []string{"117", "201"}))

	assert.Equal(t, "117\n201\n", buf.String())
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner(testLog(), Config{})

	assert.Equal(t, DefaultConfig().Command, r.cfg.Command)
	assert.Equal(t, DefaultConfig().Args, r.cfg.Args)
}

func requireShell(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunner_Run(t *testing.T) {
	requireShell(t)

	r := NewRunner(testLog(), Config{
		Command: "sh",
		Args:    []string{"-c", "printf 'Numa node 0 1\\n 0 117.2 201.9\\n 1 200.7 115.0\\n'"},
	})

	values, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"117", "201"}, values)
}

func TestRunner_CommandFails(t *testing.T) {
	requireShell(t)

	r := NewRunner(testLog(), Config{
		Command: "sh",
		Args:    []string{"-c", "echo boom >&2; exit 3"},
	})

	_, err := r.Run(context.Background())
	require.Error(t, err)

	var exitErr *exec.ExitError
	assert.True(t, errors.As(err, &exitErr))
}

func TestRunner_RowKeptOnNonZeroExit(t *testing.T) {
	requireShell(t)

	r := NewRunner(testLog(), Config{
		Command: "sh",
		Args:    []string{"-c", "printf ' 0 117.2 201.9\\n'; exit 2"},
	})

	values, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"117", "201"}, values)
}

func TestRunner_MissingBinary(t *testing.T) {
	r := NewRunner(testLog(), Config{Command: "/nonexistent/mlc"})

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting /nonexistent/mlc")
}

func TestRunner_NoRow(t *testing.T) {
	requireShell(t)

	r := NewRunner(testLog(), Config{
		Command: "sh",
		Args:    []string{"-c", "echo nothing here"},
	})

	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrRowNotFound)
}
