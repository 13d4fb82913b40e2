package main

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/apex/config"
	"github.com/pthm-cable/apex/drive"
	"github.com/pthm-cable/apex/nav"
	"github.com/pthm-cable/apex/neural"
	"github.com/pthm-cable/apex/telemetry"
	"github.com/pthm-cable/apex/viewer"
	"github.com/pthm-cable/apex/world"
)

// progressEvery is the tick interval between progress log lines in the
// single-car modes.
const progressEvery = 500

// runDrive sends one planner-driven car through the course among traffic.
func runDrive(cfg *config.Config, seed int64, hub *viewer.Hub) error {
	w := world.New(cfg)
	w.Reset(seed, 1)

	opts, err := plannerOptions(cfg)
	if err != nil {
		return err
	}
	planner, err := nav.NewPlanner(w.Grid(), opts)
	if err != nil {
		return err
	}
	follower := nav.NewFollower(w.Grid(), planner, followerConfig(cfg))
	strat, err := drive.New(drive.KindPlanner, nil, follower)
	if err != nil {
		return err
	}

	slog.Info("starting planner drive",
		"seed", seed,
		"max_ticks", cfg.Sim.MaxTicks,
		"traffic", cfg.Traffic.Count,
		"connectivity", cfg.Planner.Connectivity,
		"heuristic", cfg.Planner.Heuristic,
	)

	report := driveEpisode(cfg, w, strat, follower, hub)
	slog.Info("drive complete",
		"distance", report.Distance,
		"checkpoints", report.Checkpoints,
		"collisions", report.Collisions,
		"ticks", report.Ticks,
		"reached_goal", report.ReachedGoal,
		"replans", follower.Replans,
		"state", follower.State().String(),
	)
	return nil
}

// runReplay drives a saved champion genome through one episode. A zero seed
// replays the champion's own training course.
func runReplay(cfg *config.Config, seed int64, path string, hub *viewer.Hub) error {
	champ, err := telemetry.LoadChampion(path)
	if err != nil {
		return err
	}
	topo, err := champ.Topology()
	if err != nil {
		return err
	}
	if topo.Inputs() != cfg.Derived.FeatureLen {
		return fmt.Errorf("champion expects %d inputs, sensors produce %d (check sensors.rays and include_speed)",
			topo.Inputs(), cfg.Derived.FeatureLen)
	}
	net, err := neural.NewNetwork(topo, champ.Genome)
	if err != nil {
		return err
	}
	strat, err := drive.New(drive.KindNeural, net, nil)
	if err != nil {
		return err
	}

	if seed == 0 {
		seed = champ.Seed
	}
	w := world.New(cfg)
	w.Reset(seed, 1)

	slog.Info("replaying champion",
		"path", path,
		"fitness", champ.Fitness,
		"generation", champ.Generation,
		"seed", seed,
	)

	report := driveEpisode(cfg, w, strat, nil, hub)
	slog.Info("replay complete",
		"distance", report.Distance,
		"checkpoints", report.Checkpoints,
		"collisions", report.Collisions,
		"ticks", report.Ticks,
		"reached_goal", report.ReachedGoal,
	)
	return nil
}

// driveEpisode ticks a one-car episode on an already reset world until the
// car finishes or the tick cap hits. When a follower is given, its cached
// path rides along on viewer snapshots and replans show up in progress logs.
func driveEpisode(cfg *config.Config, w *world.World, strat drive.Strategy, follower *nav.Follower, hub *viewer.Hub) world.CarReport {
	rig := w.Rig()
	features := make([]float32, rig.FeatureLen())
	goalX, goalY := w.Goal()
	cmds := make([]drive.Command, 1)
	var snaps []world.CarState

	for !w.Done() {
		snaps = w.Snapshot(snaps)
		st := &snaps[0]
		if st.Done {
			cmds[0] = drive.Command{}
		} else {
			rig.Sense(st.X, st.Y, st.Heading, st.Speed, w, features)
			cmds[0] = strat.Decide(drive.AgentState{
				Tick:     st.Tick,
				X:        st.X,
				Y:        st.Y,
				Heading:  st.Heading,
				Speed:    st.Speed,
				GoalX:    goalX,
				GoalY:    goalY,
				Features: features,
			})
		}
		w.Apply(cmds)
		w.Step()

		if hub != nil && int(st.Tick)%cfg.Viewer.TickStride == 0 {
			hub.Broadcast(episodeSnapshot(st, follower))
		}
		if st.Tick > 0 && int(st.Tick)%progressEvery == 0 {
			logProgress(w, st.Tick, follower)
		}
	}
	return w.CarReport(0)
}

// episodeSnapshot builds one viewer frame from the car's pre-step state.
func episodeSnapshot(st *world.CarState, follower *nav.Follower) viewer.Snapshot {
	snap := viewer.Snapshot{Tick: st.Tick, X: st.X, Y: st.Y}
	if !st.Done {
		snap.Alive = 1
	}
	if follower != nil {
		path := follower.Path()
		if len(path) > 0 {
			pts := make([][2]float32, len(path))
			for i, wp := range path {
				pts[i] = [2]float32{wp.X, wp.Y}
			}
			snap.Path = pts
		}
	}
	return snap
}

func logProgress(w *world.World, tick int32, follower *nav.Follower) {
	rep := w.CarReport(0)
	attrs := []any{
		"tick", tick,
		"distance", rep.Distance,
		"checkpoints", rep.Checkpoints,
	}
	if follower != nil {
		attrs = append(attrs, "replans", follower.Replans, "state", follower.State().String())
	}
	slog.Info("progress", attrs...)
}

// plannerOptions maps the config's planner section onto nav.Options.
func plannerOptions(cfg *config.Config) (nav.Options, error) {
	h, err := nav.ParseHeuristic(cfg.Planner.Heuristic)
	if err != nil {
		return nav.Options{}, err
	}
	return nav.Options{Connectivity: cfg.Planner.Connectivity, Heuristic: h}, nil
}

// followerConfig maps the config's planner section onto nav.FollowerConfig.
func followerConfig(cfg *config.Config) nav.FollowerConfig {
	return nav.FollowerConfig{
		ArrivalDist: float32(cfg.Planner.ArrivalDist),
		DeviateDist: float32(cfg.Planner.DeviateDist),
		MaxPathAge:  int32(cfg.Planner.MaxPathAge),
	}
}
