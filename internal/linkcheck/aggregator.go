package linkcheck

import (
	"github.com/ethpandaops/upicheck/internal/iostat"
	"github.com/ethpandaops/upicheck/internal/topology"
)

// Aggregator accumulates the observations of one evaluation, dropping
// those that touch an excluded port or link. Both directions of a link are
// kept as separate samples.
type Aggregator struct {
	exclusions *topology.ExclusionSet

	data    []float64
	nonData []float64

	// index maps a directed key to its position in entries. A repeated key
	// overwrites its entry in place but every sample stays in data/nonData.
	index   map[string]int
	entries []linkEntry

	skipped int
}

type linkEntry struct {
	key string
	obs iostat.Observation
}

// NewAggregator creates an empty aggregator. A nil exclusion set
// excludes nothing.
func NewAggregator(exclusions *topology.ExclusionSet) *Aggregator {
	return &Aggregator{
		exclusions: exclusions,
		data:       make([]float64, 0, 16),
		nonData:    make([]float64, 0, 16),
		index:      make(map[string]int, 16),
		entries:    make([]linkEntry, 0, 16),
	}
}

// Add records the observation unless it is excluded. It reports whether
// the observation was kept.
func (a *Aggregator) Add(o iostat.Observation) bool {
	if a.exclusions.ExcludesPort(o.From) || a.exclusions.ExcludesPort(o.To) {
		a.skipped++

		return false
	}

	if a.exclusions.ExcludesLink(o.From, o.To) {
		a.skipped++

		return false
	}

	a.data = append(a.data, float64(o.DataBytes))
	a.nonData = append(a.nonData, float64(o.NonDataBytes))

	key := o.Key()
	if i, ok := a.index[key]; ok {
		a.entries[i].obs = o
	} else {
		a.index[key] = len(a.entries)
		a.entries = append(a.entries, linkEntry{key: key, obs: o})
	}

	return true
}

// Samples returns the number of kept observations.
func (a *Aggregator) Samples() int {
	return len(a.data)
}

// Skipped returns the number of excluded observations.
func (a *Aggregator) Skipped() int {
	return a.skipped
}

// Rates normalizes every kept sample by the elapsed seconds and returns
// the data samples, the non-data samples and the per-directed-link table
// in first-seen order.
func (a *Aggregator) Rates(elapsed float64) ([]float64, []float64, []LinkRate) {
	data := make([]float64, len(a.data))
	for i, v := range a.data {
		data[i] = v / elapsed
	}

	nonData := make([]float64, len(a.nonData))
	for i, v := range a.nonData {
		nonData[i] = v / elapsed
	}

	links := make([]LinkRate, 0, len(a.entries))
	for _, e := range a.entries {
		links = append(links, LinkRate{
			Key:     e.key,
			From:    e.obs.From,
			To:      e.obs.To,
			Data:    float64(e.obs.DataBytes) / elapsed,
			NonData: float64(e.obs.NonDataBytes) / elapsed,
		})
	}

	return data, nonData, links
}
