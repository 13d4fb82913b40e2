//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "apex.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	recs := []GenerationRecord{
		{RunID: "run-1", Generation: 0, BestFitness: 12, MeanFitness: 3},
		{RunID: "run-1", Generation: 1, BestFitness: 30, MeanFitness: 11, ReachedGoal: 2},
		{RunID: "run-2", Generation: 0, BestFitness: 7},
	}
	for _, rec := range recs {
		if err := store.SaveGeneration(ctx, rec); err != nil {
			t.Fatalf("save generation: %v", err)
		}
	}

	out, ok, err := store.Generations(ctx, "run-1")
	if err != nil {
		t.Fatalf("get generations: %v", err)
	}
	if !ok || len(out) != 2 {
		t.Fatalf("generations ok=%v len=%d, want true 2", ok, len(out))
	}
	if out[0].Generation != 0 || out[1].Generation != 1 {
		t.Errorf("generations out of order: %+v", out)
	}
	if out[1].ReachedGoal != 2 {
		t.Errorf("reached goal = %d, want 2", out[1].ReachedGoal)
	}

	champ := ChampionRecord{
		RunID:      "run-1",
		Generation: 1,
		Fitness:    30,
		Genome:     []float32{0.5, -1.5},
	}
	if err := store.SaveChampion(ctx, champ); err != nil {
		t.Fatalf("save champion: %v", err)
	}

	// Upsert replaces the previous champion for the run.
	champ.Fitness = 44
	champ.Generation = 3
	if err := store.SaveChampion(ctx, champ); err != nil {
		t.Fatalf("resave champion: %v", err)
	}

	gotChamp, ok, err := store.Champion(ctx, "run-1")
	if err != nil {
		t.Fatalf("get champion: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted champion")
	}
	if gotChamp.Fitness != 44 || gotChamp.Generation != 3 {
		t.Errorf("champion = %+v, want fitness 44 at generation 3", gotChamp)
	}
	if len(gotChamp.Genome) != 2 || gotChamp.Genome[1] != -1.5 {
		t.Errorf("genome = %v", gotChamp.Genome)
	}
}

func TestSQLiteStoreMiss(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "apex.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if _, ok, err := store.Generations(ctx, "missing"); ok || err != nil {
		t.Errorf("generations miss: ok=%v err=%v, want false nil", ok, err)
	}
	if _, ok, err := store.Champion(ctx, "missing"); ok || err != nil {
		t.Errorf("champion miss: ok=%v err=%v, want false nil", ok, err)
	}
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	store := NewSQLiteStore("")
	if err := store.Init(context.Background()); err == nil {
		t.Error("expected error for empty path")
	}
}
