package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/apex/config"
)

// RunSummary captures the run outcome, written as run.json on shutdown.
type RunSummary struct {
	Strategy       string  `json:"strategy"`
	Seed           int64   `json:"seed"`
	Generations    int     `json:"generations"`
	BestFitness    float32 `json:"best_fitness"`
	BestGeneration int     `json:"best_generation"`
	GoalReached    bool    `json:"goal_reached"`
	ElapsedSec     float64 `json:"elapsed_sec"`
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir          string
	statsFile    *os.File
	episodesFile *os.File
	perfFile     *os.File

	// Track if headers have been written
	statsHeaderWritten    bool
	episodesHeaderWritten bool
	perfHeaderWritten     bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	statsPath := filepath.Join(dir, "stats.csv")
	f, err := os.Create(statsPath)
	if err != nil {
		return nil, fmt.Errorf("creating stats.csv: %w", err)
	}
	om.statsFile = f

	episodesPath := filepath.Join(dir, "episodes.csv")
	f, err = os.Create(episodesPath)
	if err != nil {
		om.statsFile.Close()
		return nil, fmt.Errorf("creating episodes.csv: %w", err)
	}
	om.episodesFile = f

	perfPath := filepath.Join(dir, "perf.csv")
	f, err = os.Create(perfPath)
	if err != nil {
		om.statsFile.Close()
		om.episodesFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	configPath := filepath.Join(om.dir, "config.yaml")
	return cfg.WriteYAML(configPath)
}

// WriteStats writes a generation stats record to stats.csv.
func (om *OutputManager) WriteStats(stats GenStats) error {
	if om == nil {
		return nil
	}

	records := []GenStats{stats}

	if !om.statsHeaderWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, om.statsFile); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}
		om.statsHeaderWritten = true
	} else {
		// Subsequent writes skip headers
		if err := gocsv.MarshalWithoutHeaders(records, om.statsFile); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}
	}

	return nil
}

// WriteEpisodes appends one generation's per-individual rows to episodes.csv.
func (om *OutputManager) WriteEpisodes(rows []EpisodeRow) error {
	if om == nil || len(rows) == 0 {
		return nil
	}

	if !om.episodesHeaderWritten {
		if err := gocsv.Marshal(rows, om.episodesFile); err != nil {
			return fmt.Errorf("writing episodes: %w", err)
		}
		om.episodesHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(rows, om.episodesFile); err != nil {
			return fmt.Errorf("writing episodes: %w", err)
		}
	}

	return nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, generation int) error {
	if om == nil {
		return nil
	}

	records := []PerfCSV{stats.ToCSV(generation)}

	if !om.perfHeaderWritten {
		if err := gocsv.Marshal(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
		om.perfHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
	}

	return nil
}

// WriteHallOfFame saves the hall of fame as JSON.
func (om *OutputManager) WriteHallOfFame(hof *HallOfFame) error {
	if om == nil || hof == nil {
		return nil
	}

	hofPath := filepath.Join(om.dir, "hall_of_fame.json")
	data, err := hof.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling hall of fame: %w", err)
	}

	if err := os.WriteFile(hofPath, data, 0644); err != nil {
		return fmt.Errorf("writing hall_of_fame.json: %w", err)
	}

	return nil
}

// WriteChampion saves the champion as champion.json.
func (om *OutputManager) WriteChampion(c Champion) error {
	if om == nil {
		return nil
	}
	return SaveChampion(filepath.Join(om.dir, "champion.json"), c)
}

// WriteSummary saves the run summary as run.json.
func (om *OutputManager) WriteSummary(sum RunSummary) error {
	if om == nil {
		return nil
	}

	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}

	sumPath := filepath.Join(om.dir, "run.json")
	if err := os.WriteFile(sumPath, data, 0644); err != nil {
		return fmt.Errorf("writing run.json: %w", err)
	}

	return nil
}

// WritePlot renders the fitness progression as fitness.png.
func (om *OutputManager) WritePlot(history []GenStats) error {
	if om == nil {
		return nil
	}
	return PlotFitness(filepath.Join(om.dir, "fitness.png"), history)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error

	if om.statsFile != nil {
		if err := om.statsFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if om.episodesFile != nil {
		if err := om.episodesFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if om.perfFile != nil {
		if err := om.perfFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
