package evolve

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/pthm-cable/apex/drive"
	"github.com/pthm-cable/apex/neural"
	"github.com/pthm-cable/apex/sensors"
	"github.com/pthm-cable/apex/world"
)

// parallelThreshold is the minimum car count worth fanning out. Below it
// the dispatch overhead beats the win.
const parallelThreshold = 8

// workChunk is a contiguous range of car indices for one worker pass.
type workChunk struct {
	start, end   int
	goalX, goalY float32
}

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	features []float32
}

// Evaluator scores generations by episode: every individual drives its own
// car through one shared world, and the finished episode reports feed the
// population's fitness. The per-tick decide phase fans out across a
// persistent worker pool; sensing and inference touch only per-car and
// per-worker state plus the read-only grid, while physics and bookkeeping
// stay on the caller's goroutine.
type Evaluator struct {
	w    *world.World
	topo neural.Topology
	rig  sensors.Rig

	strategies []*drive.NeuralStrategy
	snapshots  []world.CarState
	cmds       []drive.Command

	numWorkers int
	scratches  []workerScratch

	workChan chan workChunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// NewEvaluator wraps a world for repeated generation runs. workers <= 0
// means GOMAXPROCS.
func NewEvaluator(w *world.World, topo neural.Topology, workers int) *Evaluator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	rig := w.Rig()
	scratches := make([]workerScratch, workers)
	for i := range scratches {
		scratches[i].features = make([]float32, rig.FeatureLen())
	}
	return &Evaluator{
		w:          w,
		topo:       topo,
		rig:        rig,
		numWorkers: workers,
		scratches:  scratches,
	}
}

// EvaluateGeneration runs one episode with every individual on the track at
// once and records each finished report into pop. The episode seed fixes
// the course and traffic, so equal genomes score equally across calls. A
// genome that does not fit the topology fails here, before any driving.
func (e *Evaluator) EvaluateGeneration(pop *Population, seed int64) error {
	inds := pop.Individuals()

	e.strategies = e.strategies[:0]
	for i, ind := range inds {
		net, err := neural.NewNetwork(e.topo, ind.Genome)
		if err != nil {
			return fmt.Errorf("individual %d: %w", i, err)
		}
		s, err := drive.NewNeuralStrategy(net)
		if err != nil {
			return fmt.Errorf("individual %d: %w", i, err)
		}
		e.strategies = append(e.strategies, s)
	}

	e.runEpisode(seed)

	for i := range inds {
		pop.Record(i, Report(e.w.CarReport(i)))
	}
	return nil
}

// RunEpisode drives a single genome through the episode and returns its
// report. Used to replay champions.
func (e *Evaluator) RunEpisode(genome Genome, seed int64) (Report, error) {
	net, err := neural.NewNetwork(e.topo, genome)
	if err != nil {
		return Report{}, err
	}
	s, err := drive.NewNeuralStrategy(net)
	if err != nil {
		return Report{}, err
	}

	e.strategies = append(e.strategies[:0], s)
	e.runEpisode(seed)
	return Report(e.w.CarReport(0)), nil
}

// runEpisode resets the world for len(strategies) cars and ticks it to the
// end: snapshot, decide, apply, step.
func (e *Evaluator) runEpisode(seed int64) {
	n := len(e.strategies)
	e.w.Reset(seed, n)

	if cap(e.cmds) < n {
		e.cmds = make([]drive.Command, n)
	}
	e.cmds = e.cmds[:n]

	goalX, goalY := e.w.Goal()
	for !e.w.Done() {
		e.snapshots = e.w.Snapshot(e.snapshots)
		e.decide(goalX, goalY)
		e.w.Apply(e.cmds)
		e.w.Step()
	}
}

// decide fills cmds from the snapshots, in parallel when the generation is
// big enough. Workers write disjoint cmds indices and read only the
// snapshot slice and the grid, which does not change between Snapshot and
// Step, so the result is independent of scheduling.
func (e *Evaluator) decide(goalX, goalY float32) {
	n := len(e.snapshots)
	if n < parallelThreshold || e.numWorkers <= 1 {
		e.decideChunk(0, n, &e.scratches[0], goalX, goalY)
		return
	}

	if !e.running {
		e.startWorkers()
	}

	chunkSize := (n + e.numWorkers - 1) / e.numWorkers
	dispatched := 0
	for w := 0; w < e.numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		e.workChan <- workChunk{start: start, end: end, goalX: goalX, goalY: goalY}
		dispatched++
	}
	for i := 0; i < dispatched; i++ {
		<-e.doneChan
	}
}

// decideChunk senses and runs the strategy for cars [i0, i1). Finished cars
// get a zero command.
func (e *Evaluator) decideChunk(i0, i1 int, scratch *workerScratch, goalX, goalY float32) {
	for i := i0; i < i1; i++ {
		snap := &e.snapshots[i]
		if snap.Done {
			e.cmds[i] = drive.Command{}
			continue
		}
		e.rig.Sense(snap.X, snap.Y, snap.Heading, snap.Speed, e.w, scratch.features)
		e.cmds[i] = e.strategies[i].Decide(drive.AgentState{
			Tick:     snap.Tick,
			X:        snap.X,
			Y:        snap.Y,
			Heading:  snap.Heading,
			Speed:    snap.Speed,
			GoalX:    goalX,
			GoalY:    goalY,
			Features: scratch.features,
		})
	}
}

// startWorkers launches the persistent worker goroutines.
func (e *Evaluator) startWorkers() {
	if e.running {
		return
	}

	e.workChan = make(chan workChunk, e.numWorkers)
	e.doneChan = make(chan struct{}, e.numWorkers)
	e.stopChan = make(chan struct{})
	e.running = true

	for i := 0; i < e.numWorkers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
}

// worker processes chunks until stopped.
func (e *Evaluator) worker(id int) {
	defer e.wg.Done()
	scratch := &e.scratches[id]

	for {
		select {
		case <-e.stopChan:
			return
		case chunk, ok := <-e.workChan:
			if !ok {
				return
			}
			e.decideChunk(chunk.start, chunk.end, scratch, chunk.goalX, chunk.goalY)
			e.doneChan <- struct{}{}
		}
	}
}

// Close stops the worker pool. The evaluator must not be used afterwards.
func (e *Evaluator) Close() {
	if !e.running {
		return
	}
	close(e.stopChan)
	e.wg.Wait()
	close(e.workChan)
	close(e.doneChan)
	e.running = false
}
