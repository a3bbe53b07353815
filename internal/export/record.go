package export

import (
	"time"

	"github.com/google/uuid"

	"github.com/ethpandaops/upicheck/internal/host"
	"github.com/ethpandaops/upicheck/internal/linkcheck"
	"github.com/ethpandaops/upicheck/internal/topology"
)

// RunRecord is the exported form of one check, shared by every sink.
type RunRecord struct {
	RunID         string    `json:"run_id"`
	Timestamp     time.Time `json:"timestamp"`
	Hostname      string    `json:"hostname"`
	KernelRelease string    `json:"kernel_release"`
	Machine       string    `json:"machine"`

	Sockets int `json:"sockets"`
	UPIs    int `json:"upis"`

	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
	Message string `json:"message"`

	DataMean        float64 `json:"data_mean"`
	DataVariance    float64 `json:"data_variance"`
	NonDataMean     float64 `json:"non_data_mean"`
	NonDataVariance float64 `json:"non_data_variance"`

	Samples         int      `json:"samples"`
	Skipped         int      `json:"skipped"`
	ReferenceGFlops float64  `json:"reference_gflops"`
	ElapsedSeconds  float64  `json:"elapsed_seconds"`
	ExcludedLinks   []string `json:"excluded_links"`
	ExcludedPorts   []string `json:"excluded_ports"`

	Links []LinkRecord `json:"links"`
}

// LinkRecord is the rate of one directed link within a run.
type LinkRecord struct {
	FromSocket  uint8   `json:"from_socket"`
	FromUPI     uint8   `json:"from_upi"`
	ToSocket    uint8   `json:"to_socket"`
	ToUPI       uint8   `json:"to_upi"`
	DataRate    float64 `json:"data_rate"`
	NonDataRate float64 `json:"non_data_rate"`
}

// NewRunRecord builds the exported record of a result.
func NewRunRecord(res *linkcheck.Result, info host.Info, at time.Time) RunRecord {
	rec := RunRecord{
		RunID:           uuid.NewString(),
		Timestamp:       at.UTC(),
		Hostname:        info.Hostname,
		KernelRelease:   info.KernelRelease,
		Machine:         info.Machine,
		Sockets:         res.Topology.Sockets,
		UPIs:            res.Topology.LinksPerSocket,
		Verdict:         string(res.Verdict),
		Reason:          string(res.Reason),
		Message:         res.Message,
		DataMean:        res.Data.Mean,
		DataVariance:    res.Data.Variance,
		NonDataMean:     res.NonData.Mean,
		NonDataVariance: res.NonData.Variance,
		Samples:         res.Samples,
		Skipped:         res.Skipped,
		ReferenceGFlops: res.ReferenceGFlops,
		ElapsedSeconds:  res.Elapsed,
		ExcludedLinks:   linkKeyStrings(res.ExcludedLinks),
		ExcludedPorts:   append([]string{}, res.ExcludedPorts...),
		Links:           make([]LinkRecord, 0, len(res.Links)),
	}

	for _, l := range res.Links {
		rec.Links = append(rec.Links, LinkRecord{
			FromSocket:  clampUint[uint8](l.From.Socket),
			FromUPI:     clampUint[uint8](l.From.Link),
			ToSocket:    clampUint[uint8](l.To.Socket),
			ToUPI:       clampUint[uint8](l.To.Link),
			DataRate:    l.Data,
			NonDataRate: l.NonData,
		})
	}

	return rec
}

// clampUint converts v to an unsigned column type, saturating at the
// bounds of T instead of wrapping.
func clampUint[T uint8 | uint16 | uint32](v int) T {
	if v <= 0 {
		return 0
	}

	limit := uint64(^T(0))
	if uint64(v) > limit {
		return T(limit)
	}

	return T(v)
}

func linkKeyStrings(keys []topology.LinkKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, string(k))
	}

	return out
}
