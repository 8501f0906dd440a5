// Package watershed segments a voxel grid into catchment basins by immersion
// simulation (Vincent & Soille): voxels are flooded one height level at a
// time, labels spread from already flooded basins in order of geodesic
// distance inside the level, and voxels reached from two basins at the same
// distance become watershed.
package watershed

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"watershed3d/pkg/grid"
	"watershed3d/pkg/logging"
)

// parallelSeedThreshold is the smallest level whose seed detection is split
// across workers.
const parallelSeedThreshold = 4096

// Result summarises one flood.
type Result struct {
	// Basins is the number of basins discovered; labels run 1..Basins
	Basins int

	// WatershedVoxels is the number of voxels left on basin boundaries
	WatershedVoxels int

	// Levels is the number of distinct heights processed
	Levels int
}

// Option configures an Engine.
type Option func(*Engine)

// WithConnectivity sets the neighbor topology. The default is grid.Face6.
func WithConnectivity(conn grid.Connectivity) Option {
	return func(e *Engine) {
		e.conn = conn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Engine) {
		e.logger = logging.OrNop(logger)
	}
}

// WithWorkers sets how many goroutines may share the masking pass of a level.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.workers = n
	}
}

// WithLevelHook registers fn to be called after each tie level is settled.
func WithLevelHook(fn func(Level)) Option {
	return func(e *Engine) {
		e.levelHook = fn
	}
}

// Engine floods a grid. It owns the grid's labels and distances while Run is
// in progress.
type Engine struct {
	grid      *grid.Grid
	conn      grid.Connectivity
	logger    *zap.SugaredLogger
	workers   int
	levelHook func(Level)

	basins   int
	nbuf     []int
	frontier []int
	next     []int
	queue    []int
}

// NewEngine creates an engine over g.
func NewEngine(g *grid.Grid, opts ...Option) *Engine {
	e := &Engine{
		grid:    g,
		conn:    grid.Face6,
		logger:  zap.NewNop().Sugar(),
		workers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if !e.conn.Valid() {
		e.conn = grid.Face6
	}
	e.nbuf = make([]int, 0, len(e.conn.Offsets()))
	return e
}

// Run labels every voxel of the grid with a basin or watershed. Existing
// labels are discarded. ctx is only checked between levels.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	g := e.grid
	g.Reset()
	e.basins = 0

	order := NewOrdering(g.Heights)
	levels := order.Levels()
	e.logger.Debugw("flooding", "voxels", g.Len(), "levels", len(levels), "connectivity", e.conn.String())

	var seeds []bool
	for _, lvl := range levels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		voxels := order.Voxels(lvl)

		if cap(seeds) < len(voxels) {
			seeds = make([]bool, len(voxels))
		}
		seeds = seeds[:len(voxels)]
		if err := e.detectSeeds(voxels, seeds); err != nil {
			return nil, err
		}

		e.frontier = e.frontier[:0]
		for i, v := range voxels {
			g.Labels[v] = grid.Masked
			if seeds[i] {
				g.Dist[v] = 1
				e.frontier = append(e.frontier, v)
			}
		}

		if err := e.propagate(1); err != nil {
			return nil, err
		}
		e.discoverMinima(voxels, lvl.Height)

		if e.levelHook != nil {
			e.levelHook(lvl)
		}
	}

	res := &Result{
		Basins:          e.basins,
		WatershedVoxels: g.Count(grid.Watershed),
		Levels:          len(levels),
	}
	e.logger.Debugw("flood complete", "basins", res.Basins, "watershedVoxels", res.WatershedVoxels)
	return res, nil
}

// touchesSettled reports whether voxel v has a neighbor from an earlier level.
func (e *Engine) touchesSettled(v int, buf []int) bool {
	for _, q := range e.grid.Neighbors(v, e.conn, buf[:0]) {
		if e.grid.Labels[q].IsSettled() {
			return true
		}
	}
	return false
}

// detectSeeds marks which voxels of a level border already flooded territory.
// It only reads labels, so large levels are split across workers.
func (e *Engine) detectSeeds(voxels []int, seeds []bool) error {
	if e.workers <= 1 || len(voxels) < parallelSeedThreshold {
		for i, v := range voxels {
			seeds[i] = e.touchesSettled(v, e.nbuf)
		}
		return nil
	}

	var grp errgroup.Group
	chunk := (len(voxels) + e.workers - 1) / e.workers
	for start := 0; start < len(voxels); start += chunk {
		start := start
		end := min(start+chunk, len(voxels))
		grp.Go(func() error {
			buf := make([]int, 0, len(e.conn.Offsets()))
			for i := start; i < end; i++ {
				seeds[i] = e.touchesSettled(voxels[i], buf)
			}
			return nil
		})
	}
	return grp.Wait()
}

// propagate spreads labels through the masked voxels of the current level,
// one distance class at a time, starting with e.frontier at distance dist.
func (e *Engine) propagate(dist int32) error {
	g := e.grid
	frontier, next := e.frontier, e.next[:0]
	for len(frontier) > 0 {
		for _, p := range frontier {
			e.nbuf = g.Neighbors(p, e.conn, e.nbuf[:0])
			for _, q := range e.nbuf {
				ql := g.Labels[q]
				switch {
				case g.Dist[q] < dist && ql.IsSettled():
					if g.Dist[q] != dist-1 {
						x, y, z := g.Dims.Coord(q)
						return errors.WithStack(&InvariantError{
							Voxel: q, X: x, Y: y, Z: z,
							Expected: dist - 1,
							Observed: g.Dist[q],
						})
					}
					pl := g.Labels[p]
					if ql.IsBasin() {
						if pl == grid.Masked || pl == grid.Watershed {
							g.Labels[p] = ql
						} else if pl != ql {
							g.Labels[p] = grid.Watershed
						}
					} else if pl == grid.Masked {
						g.Labels[p] = grid.Watershed
					}
				case ql == grid.Masked && g.Dist[q] == 0:
					// plateau voxel not yet reached
					g.Dist[q] = dist + 1
					next = append(next, q)
				}
			}
		}
		frontier, next = next, frontier[:0]
		dist++
	}
	e.frontier, e.next = frontier, next
	return nil
}

// discoverMinima gives a new basin to every group of level voxels that the
// propagation never reached, and clears the level's distances.
func (e *Engine) discoverMinima(voxels []int, height float64) {
	g := e.grid
	queue := e.queue
	for _, v := range voxels {
		g.Dist[v] = 0
		if g.Labels[v] != grid.Masked {
			continue
		}

		e.basins++
		label := grid.Basin(e.basins)
		if e.logger.Desugar().Core().Enabled(zap.DebugLevel) {
			x, y, z := g.Dims.Coord(v)
			e.logger.Debugw("new minimum", "basin", e.basins, "x", x, "y", y, "z", z, "height", height)
		}

		g.Labels[v] = label
		queue = append(queue[:0], v)
		for head := 0; head < len(queue); head++ {
			e.nbuf = g.Neighbors(queue[head], e.conn, e.nbuf[:0])
			for _, q := range e.nbuf {
				if g.Labels[q] == grid.Masked {
					g.Labels[q] = label
					queue = append(queue, q)
				}
			}
		}
	}
	e.queue = queue[:0]
}
