package engine

import "math"

// minSamplesForAverage is the §4.1 threshold below which a stage's
// latency average (and its derived bufferbloat ratio) is undefined.
const minSamplesForAverage = 3

// average returns the arithmetic mean of samples, or (0, false) if there
// are fewer than minSamplesForAverage.
func average(samples []LatencySample) (float64, bool) {
	if len(samples) < minSamplesForAverage {
		return 0, false
	}
	var sum float64
	for _, s := range samples {
		sum += s.RoundTripMs
	}
	return sum / float64(len(samples)), true
}

// jitter is the mean of |x_{i+1} - x_i| over consecutive samples in
// record-time order (spec.md §4.1). At least 2 samples are required.
func jitter(samples []LatencySample) (float64, bool) {
	if len(samples) < 2 {
		return 0, false
	}
	var sum float64
	for i := 1; i < len(samples); i++ {
		sum += math.Abs(samples[i].RoundTripMs - samples[i-1].RoundTripMs)
	}
	return sum / float64(len(samples)-1), true
}

// RPM converts a latency figure in milliseconds to responsiveness-per-minute
// (spec.md §4.1, GLOSSARY): floor(60000 / latency_ms), or 0 when
// latency_ms <= 0.
func RPM(latencyMs float64) int {
	if latencyMs <= 0 {
		return 0
	}
	return int(math.Floor(60000.0 / latencyMs))
}

// bufferbloatGrade grades the worse of the two loaded/idle ratios
// (spec.md §4.3). r is assumed already computed as max(download, upload).
func bufferbloatGrade(r float64) string {
	switch {
	case r < 1.5:
		return "A+"
	case r < 2.0:
		return "A"
	case r < 3.0:
		return "B"
	case r < 5.0:
		return "C"
	case r < 10.0:
		return "D"
	default:
		return "F"
	}
}

// computeLoadedLatency builds the LoadedLatencyResult from a session's
// per-stage samples (spec.md §3, §4.1, §4.3). notes carries any
// ProbeDegraded warnings accumulated during the test (spec.md §7).
func computeLoadedLatency(idle, download, upload []LatencySample, notes []string) *LoadedLatencyResult {
	result := &LoadedLatencyResult{Notes: notes}

	idleAvg, idleOK := average(idle)
	downloadAvg, downloadOK := average(download)
	uploadAvg, uploadOK := average(upload)

	if idleOK {
		result.IdleAvgMs = &idleAvg
		result.IdleRPM = RPM(idleAvg)
	}
	if downloadOK {
		result.DownloadAvgMs = &downloadAvg
		result.DownloadRPM = RPM(downloadAvg)
	}
	if uploadOK {
		result.UploadAvgMs = &uploadAvg
		result.UploadRPM = RPM(uploadAvg)
	}

	if idleJ, ok := jitter(idle); ok {
		result.JitterMs = &idleJ
	}
	if downJ, ok := jitter(download); ok {
		result.DownloadJitterMs = &downJ
	}
	if upJ, ok := jitter(upload); ok {
		result.UploadJitterMs = &upJ
	}

	result.BufferbloatGrade = "Unknown"
	if idleOK && idleAvg > 0 {
		if downloadOK {
			ratio := downloadAvg / idleAvg
			result.DownloadBufferbloatRatio = &ratio
		}
		if uploadOK {
			ratio := uploadAvg / idleAvg
			result.UploadBufferbloatRatio = &ratio
		}

		// A grade requires every stage that feeds it to be defined: any
		// undefined required stage leaves the grade "Unknown" (spec.md §8
		// boundary behaviors), even though the individual ratio that could
		// be computed is still reported.
		if downloadOK && uploadOK {
			worst := math.Max(downloadAvg/idleAvg, uploadAvg/idleAvg)
			result.BufferbloatGrade = bufferbloatGrade(worst)
		}
	}

	return result
}
