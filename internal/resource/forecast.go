package resource

import (
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

// linearFit returns the least-squares slope (units per second) and the
// value the fitted line predicts at the last sample's timestamp.
func linearFit(samples []domain.ResourceSample, value func(domain.ResourceSample) float64) (slope, last float64) {
	n := len(samples)
	if n == 0 {
		return 0, 0
	}
	if n == 1 {
		return 0, value(samples[0])
	}

	origin := samples[0].Timestamp
	var sumX, sumY, sumXY, sumXX float64
	for _, s := range samples {
		x := s.Timestamp.Sub(origin).Seconds()
		y := value(s)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	meanY := sumY / fn
	if denom == 0 {
		return 0, meanY
	}

	slope = (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn
	lastX := samples[n-1].Timestamp.Sub(origin).Seconds()
	return slope, intercept + slope*lastX
}

// project extrapolates the history horizon past its last sample.
func project(history []domain.ResourceSample, horizon time.Duration) domain.Forecast {
	cpuSlope, cpuNow := linearFit(history, func(s domain.ResourceSample) float64 { return s.CPUPercent })
	memSlope, memNow := linearFit(history, func(s domain.ResourceSample) float64 { return s.MemoryPercent })

	h := horizon.Seconds()
	return domain.Forecast{
		CPUPercent:    clampPercent(cpuNow + cpuSlope*h),
		MemoryPercent: clampPercent(memNow + memSlope*h),
		CPUTrend:      cpuSlope,
		MemoryTrend:   memSlope,
		Horizon:       horizon,
	}
}
