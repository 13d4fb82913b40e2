package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollectorBasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartGen()
		pc.StartPhase(PhaseEval)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseEvolve)
		time.Sleep(200 * time.Microsecond)
		pc.EndGen()
	}

	stats := pc.Stats()

	if stats.AvgGenDuration <= 0 {
		t.Error("expected positive average generation duration")
	}
	if len(stats.PhaseAvg) == 0 {
		t.Error("expected phase averages to be populated")
	}
	if _, ok := stats.PhaseAvg[PhaseEval]; !ok {
		t.Error("expected eval phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseEvolve]; !ok {
		t.Error("expected evolve phase to be tracked")
	}
	if stats.MinGenDuration <= 0 {
		t.Error("expected positive minimum generation duration")
	}
	if stats.MaxGenDuration < stats.MinGenDuration {
		t.Errorf("max %v below min %v", stats.MaxGenDuration, stats.MinGenDuration)
	}
	if stats.GensPerSecond <= 0 {
		t.Error("expected positive generations per second")
	}
}

func TestPerfCollectorEmpty(t *testing.T) {
	pc := NewPerfCollector(5)
	stats := pc.Stats()

	if stats.AvgGenDuration != 0 {
		t.Errorf("avg = %v, want 0 before any samples", stats.AvgGenDuration)
	}
	if len(stats.PhaseAvg) != 0 {
		t.Errorf("phase averages = %v, want none", stats.PhaseAvg)
	}
}

func TestPerfCollectorRollingWindow(t *testing.T) {
	pc := NewPerfCollector(3)

	for i := 0; i < 8; i++ {
		pc.StartGen()
		pc.StartPhase(PhaseEval)
		pc.EndGen()
	}

	stats := pc.Stats()
	if stats.AvgGenDuration < 0 {
		t.Error("expected non-negative average after window wrap")
	}
	if _, ok := stats.PhaseAvg[PhaseEval]; !ok {
		t.Error("expected eval phase to survive window wrap")
	}
}

func TestPerfStatsToCSV(t *testing.T) {
	pc := NewPerfCollector(4)

	for i := 0; i < 3; i++ {
		pc.StartGen()
		pc.StartPhase(PhaseEval)
		time.Sleep(50 * time.Microsecond)
		pc.StartPhase(PhaseOutput)
		pc.EndGen()
	}

	row := pc.Stats().ToCSV(3)
	if row.Generation != 3 {
		t.Errorf("generation = %d, want 3", row.Generation)
	}
	if row.AvgGenUS <= 0 {
		t.Error("expected positive average duration")
	}
	if row.EvalPct <= 0 {
		t.Error("expected eval to claim a share of the generation")
	}
	if row.EvalPct+row.EvolvePct+row.OutputPct > 100.5 {
		t.Errorf("phase percentages exceed the whole: %v + %v + %v",
			row.EvalPct, row.EvolvePct, row.OutputPct)
	}
}
