package export

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/upicheck/internal/host"
	"github.com/ethpandaops/upicheck/internal/linkcheck"
	"github.com/ethpandaops/upicheck/internal/topology"
)

func TestNewRunRecord(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	info := host.Info{Hostname: "mesca5mod-63", KernelRelease: "6.1.0", Machine: "x86_64"}

	rec := NewRunRecord(testResult(), info, at)

	assert.NotEmpty(t, rec.RunID)
	assert.Equal(t, at.UTC(), rec.Timestamp)
	assert.Equal(t, "mesca5mod-63", rec.Hostname)
	assert.Equal(t, 2, rec.Sockets)
	assert.Equal(t, 4, rec.UPIs)
	assert.Equal(t, "fail", rec.Verdict)
	assert.Equal(t, "uneven_bandwidth", rec.Reason)
	assert.Equal(t, []string{"0-1:1-0"}, rec.ExcludedLinks)
	assert.Equal(t, []string{}, rec.ExcludedPorts)

	require.Len(t, rec.Links, 2)
	assert.Equal(t, LinkRecord{
		FromSocket:  1,
		FromUPI:     1,
		ToSocket:    0,
		ToUPI:       0,
		DataRate:    15.6,
		NonDataRate: 11.3,
	}, rec.Links[1])
}

func TestNewRunRecord_UniqueRunIDs(t *testing.T) {
	a := NewRunRecord(testResult(), host.Info{}, time.Now())
	b := NewRunRecord(testResult(), host.Info{}, time.Now())

	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestNewRunRecord_OutOfRangeIndicesSaturate(t *testing.T) {
	res := testResult()
	res.Links = []linkcheck.LinkRate{{
		From: topology.Port{Socket: 300, Link: -1},
		To:   topology.Port{Socket: 255, Link: 7},
	}}

	rec := NewRunRecord(res, host.Info{}, time.Now())

	require.Len(t, rec.Links, 1)
	assert.Equal(t, uint8(255), rec.Links[0].FromSocket)
	assert.Equal(t, uint8(0), rec.Links[0].FromUPI)
	assert.Equal(t, uint8(255), rec.Links[0].ToSocket)
	assert.Equal(t, uint8(7), rec.Links[0].ToUPI)
}

func TestClampUint(t *testing.T) {
	assert.Equal(t, uint16(0), clampUint[uint16](-5))
	assert.Equal(t, uint16(65535), clampUint[uint16](70000))
	assert.Equal(t, uint32(8), clampUint[uint32](8))
	assert.Equal(t, uint32(4294967295), clampUint[uint32](math.MaxInt))
}
