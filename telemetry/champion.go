package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pthm-cable/apex/neural"
)

// Champion is a persisted best genome together with the topology needed
// to rebuild its network in a later run.
type Champion struct {
	Inputs     int       `json:"inputs"`
	Hidden     []int     `json:"hidden"`
	Outputs    int       `json:"outputs"`
	Activation string    `json:"activation"`
	Genome     []float32 `json:"genome"`
	Fitness    float32   `json:"fitness"`
	Generation int       `json:"generation"`
	Seed       int64     `json:"seed"`
}

// Topology rebuilds the network topology the genome was evolved for.
func (c Champion) Topology() (neural.Topology, error) {
	act, err := neural.ParseActivation(c.Activation)
	if err != nil {
		return neural.Topology{}, fmt.Errorf("champion activation: %w", err)
	}
	topo, err := neural.NewTopology(c.Inputs, c.Hidden, c.Outputs, act)
	if err != nil {
		return neural.Topology{}, fmt.Errorf("champion topology: %w", err)
	}
	if topo.ParamCount() != len(c.Genome) {
		return neural.Topology{}, fmt.Errorf("champion genome has %d params, topology wants %d", len(c.Genome), topo.ParamCount())
	}
	return topo, nil
}

// SaveChampion writes the champion JSON through a temp file and rename,
// so a crash mid-write never leaves a torn file behind.
func SaveChampion(path string, c Champion) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal champion: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create champion dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "champion-*.json")
	if err != nil {
		return fmt.Errorf("create champion temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write champion: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close champion temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename champion: %w", err)
	}
	return nil
}

// LoadChampion reads a champion saved by a previous run.
func LoadChampion(path string) (Champion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Champion{}, fmt.Errorf("read champion: %w", err)
	}

	var c Champion
	if err := json.Unmarshal(data, &c); err != nil {
		return Champion{}, fmt.Errorf("parse champion: %w", err)
	}
	return c, nil
}
