package linkcheck

// ChannelStats summarizes one traffic channel across all kept samples.
type ChannelStats struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// summarize returns the mean and the Bessel-corrected sample variance.
// It needs at least two samples.
func summarize(samples []float64) ChannelStats {
	n := float64(len(samples))

	var sum float64
	for _, v := range samples {
		sum += v
	}

	mean := sum / n

	var sq float64
	for _, v := range samples {
		d := v - mean
		sq += d * d
	}

	return ChannelStats{
		Mean:     mean,
		Variance: sq / (n - 1),
	}
}
