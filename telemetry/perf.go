package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for one training generation.
const (
	PhaseEval   = "eval"
	PhaseEvolve = "evolve"
	PhaseOutput = "output"
)

// PerfSample holds timing data for a single generation.
type PerfSample struct {
	GenDuration time.Duration
	Phases      map[string]time.Duration
}

// PerfCollector tracks generation timings over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	genStart      time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a performance collector.
// windowSize: number of generations to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 20
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartGen begins timing a new generation.
func (p *PerfCollector) StartGen() {
	p.genStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	// End previous phase if any
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndGen finishes timing the current generation and records the sample.
func (p *PerfCollector) EndGen() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	sample := PerfSample{
		GenDuration: now.Sub(p.genStart),
		Phases:      p.currentPhases,
	}

	p.samples[p.writeIndex] = sample
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgGenDuration time.Duration
	MinGenDuration time.Duration
	MaxGenDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total generation time
	PhasePct map[string]float64

	GensPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var totalGen time.Duration
	var minGen, maxGen time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalGen += s.GenDuration

		if i == 0 || s.GenDuration < minGen {
			minGen = s.GenDuration
		}
		if s.GenDuration > maxGen {
			maxGen = s.GenDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avgGen := totalGen / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgGen > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgGen) * 100
		}
	}

	var gensPerSec float64
	if avgGen > 0 {
		gensPerSec = float64(time.Second) / float64(avgGen)
	}

	return PerfStats{
		AvgGenDuration: avgGen,
		MinGenDuration: minGen,
		MaxGenDuration: maxGen,
		PhaseAvg:       phaseAvg,
		PhasePct:       phasePct,
		GensPerSecond:  gensPerSec,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_gen_ms", s.AvgGenDuration.Milliseconds(),
		"min_gen_ms", s.MinGenDuration.Milliseconds(),
		"max_gen_ms", s.MaxGenDuration.Milliseconds(),
		"gens_per_sec", s.GensPerSecond,
	}

	phases := []string{PhaseEval, PhaseEvolve, PhaseOutput}
	for _, phase := range phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}

	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_gen_ms", s.AvgGenDuration.Milliseconds()),
		slog.Int64("min_gen_ms", s.MinGenDuration.Milliseconds()),
		slog.Int64("max_gen_ms", s.MaxGenDuration.Milliseconds()),
		slog.Float64("gens_per_sec", s.GensPerSecond),
	}

	for phase, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(phase+"_pct", pct))
	}

	return slog.GroupValue(attrs...)
}

// PerfCSV is a flat struct for CSV export of performance stats.
type PerfCSV struct {
	Generation int     `csv:"generation"`
	AvgGenUS   int64   `csv:"avg_gen_us"`
	MinGenUS   int64   `csv:"min_gen_us"`
	MaxGenUS   int64   `csv:"max_gen_us"`
	GensPerSec float64 `csv:"gens_per_sec"`
	EvalPct    float64 `csv:"eval_pct"`
	EvolvePct  float64 `csv:"evolve_pct"`
	OutputPct  float64 `csv:"output_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(generation int) PerfCSV {
	return PerfCSV{
		Generation: generation,
		AvgGenUS:   s.AvgGenDuration.Microseconds(),
		MinGenUS:   s.MinGenDuration.Microseconds(),
		MaxGenUS:   s.MaxGenDuration.Microseconds(),
		GensPerSec: s.GensPerSecond,
		EvalPct:    s.PhasePct[PhaseEval],
		EvolvePct:  s.PhasePct[PhaseEvolve],
		OutputPct:  s.PhasePct[PhaseOutput],
	}
}
