// Package metrics derives the dashboard's headline metrics, either from a
// batch of scan records or, when none are available, from smooth time-based
// variation around realistic baselines.
package metrics

import (
	"errors"
	"math"
	"time"

	"github.com/jmerrifield20/QuantumAegis/internal/rng"
	"github.com/jmerrifield20/QuantumAegis/internal/scan"
)

// Snapshot source labels.
const (
	SourceIntelligence = "virustotal_intelligence"
	SourceSimulation   = "simulation"
)

// Documented ranges. Simulated MTTD stays within [MinMTTD, MaxSimulatedMTTD];
// batch-derived MTTD may reach MaxMTTD.
const (
	MinConfidence = 95.0
	MaxConfidence = 99.9

	MinMTTD          = 0.5
	MaxSimulatedMTTD = 2.0
	MaxMTTD          = 3.0

	MinSimulatedBlocked = 2000
	MaxSimulatedBlocked = 3500

	MinSimulatedKeys = 30
	MaxSimulatedKeys = 60
)

// defaultFileSize is assumed for records that carry no size.
const defaultFileSize = 1_000_000

// Snapshot is the metrics payload served to the dashboard.
type Snapshot struct {
	ThreatsBlocked int       `json:"threatsBlocked"`
	MTTD           float64   `json:"mttd"`
	Confidence     float64   `json:"aiConfidence"`
	ActiveKeys     int       `json:"quantumKeys"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
}

var errNonFinite = errors.New("non-finite metric")

// Generate returns a Snapshot for the given batch at reference time ref.
// An empty batch, or one that cannot be aggregated, yields simulated values.
func Generate(batch []scan.Record, ref time.Time, src rng.Source) Snapshot {
	if len(batch) > 0 {
		if s, err := fromBatch(batch, ref, src); err == nil {
			return s
		}
	}
	return simulated(ref, src)
}

// Fallback returns a fixed mid-range Snapshot for ref. It is served when
// generation itself cannot run.
func Fallback(ref time.Time) Snapshot {
	return Snapshot{
		ThreatsBlocked: 2750,
		MTTD:           1.2,
		Confidence:     97.5,
		ActiveKeys:     45,
		Timestamp:      ref,
		Source:         SourceSimulation,
	}
}

func simulated(ref time.Time, src rng.Source) Snapshot {
	ms := float64(ref.UnixMilli())

	// Busier during the working day: the baseline climbs with the hour.
	base := 2300 + 40*float64(ref.Hour())
	blocked := base + 200*math.Sin(ms/60_000) + 80*src.Float64()

	keys := 35 + 5*math.Sin(ms/30_000) + float64(src.IntN(21))

	return Snapshot{
		ThreatsBlocked: clampInt(floor(blocked), MinSimulatedBlocked, MaxSimulatedBlocked),
		MTTD:           clamp(round1(0.8+0.8*src.Float64()), MinMTTD, MaxSimulatedMTTD),
		Confidence:     simulatedConfidence(src),
		ActiveKeys:     clampInt(floor(keys), MinSimulatedKeys, MaxSimulatedKeys),
		Timestamp:      ref,
		Source:         SourceSimulation,
	}
}

func simulatedConfidence(src rng.Source) float64 {
	return clamp(round1(96.5+2.5*src.Float64()), MinConfidence, MaxConfidence)
}

func fromBatch(batch []scan.Record, ref time.Time, src rng.Source) (Snapshot, error) {
	var malicious, engines int
	var detectTotal float64
	for _, r := range batch {
		malicious += r.Stats.Malicious
		engines += r.Stats.Engines()

		size := r.Size
		if size <= 0 {
			size = defaultFileSize
		}
		// Larger files take longer to detonate and score.
		detectTotal += clamp(float64(size)/1_000_000, MinMTTD, MaxMTTD)
	}

	n := float64(len(batch))
	ms := float64(ref.UnixMilli())

	confidence := simulatedConfidence(src)
	if engines > 0 {
		confidence = clamp(round1(float64(malicious)/float64(engines)*100), MinConfidence, MaxConfidence)
	}
	mttd := round1(detectTotal / n)
	blocked := 2000 + 50*n + 500*math.Sin(ms/3_600_000) + 100*math.Sin(ms/60_000)
	active := 40 + 2*n + 10*math.Sin(ms/30_000)

	for _, v := range []float64{confidence, mttd, blocked, active} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Snapshot{}, errNonFinite
		}
	}

	return Snapshot{
		ThreatsBlocked: max(floor(blocked), 0),
		MTTD:           mttd,
		Confidence:     confidence,
		ActiveKeys:     max(floor(active), 0),
		Timestamp:      ref,
		Source:         SourceIntelligence,
	}, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func floor(v float64) int {
	return int(math.Floor(v))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
