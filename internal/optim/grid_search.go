package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/dynamo"
	"github.com/san-kum/conesim/internal/experiment"
)

// GainParams are the parameter names understood by ScaleGains, one per
// entry of K.
var GainParams = []string{"k1", "k2", "k3", "k4"}

var ErrNoCandidate = errors.New("optim: no candidate completed")

// Candidate is one evaluated grid point. Failed runs carry the watchdog
// reason and an infinite value.
type Candidate struct {
	Params  map[string]float64
	Value   float64
	Failure string
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// SetWorkers bounds the number of experiments run at once. Zero or less
// uses one worker per CPU.
func (g *GridSearch) SetWorkers(n int) { g.workers = n }

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	if len(g.ranges) == 0 {
		return 0
	}
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search evaluates every grid point and returns the parameters with the
// smallest metric value. Each candidate gets its own experiment, so
// evaluation runs in parallel.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, error) {
	all, err := g.Evaluate(ctx, buildExperiment, metricName)
	if err != nil {
		return nil, math.Inf(1), err
	}
	if len(all) == 0 || math.IsInf(all[0].Value, 1) {
		return nil, math.Inf(1), ErrNoCandidate
	}
	return all[0].Params, all[0].Value, nil
}

// Evaluate runs every grid point and returns the candidates ordered from
// best to worst.
func (g *GridSearch) Evaluate(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) ([]Candidate, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, fmt.Errorf("%d parameter names for %d ranges: %w",
			len(g.paramNames), len(g.ranges), dynamo.ErrConfiguration)
	}

	points := make([]map[string]float64, 0, g.Size())
	g.enumerate(0, make(map[string]float64), &points)

	results := make([]Candidate, len(points))
	errs := make([]error, len(points))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < g.workerCount(len(points)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = evaluate(ctx, points[i], buildExperiment, metricName)
			}
		}()
	}

feed:
	for i := range points {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, err)
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Value < results[j].Value })
	return results, nil
}

func (g *GridSearch) workerCount(jobs int) int {
	n := g.workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return max(min(n, jobs), 1)
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.enumerate(depth+1, newParams, out)
	}
}

func evaluate(
	ctx context.Context,
	params map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (Candidate, error) {
	c := Candidate{Params: params, Value: math.Inf(1)}

	exp, err := buildExperiment(params)
	if err != nil {
		return c, err
	}
	result, err := exp.Run(ctx)
	if err != nil {
		if errors.Is(err, dynamo.ErrContextCanceled) {
			return c, nil
		}
		return c, err
	}
	if result.Failure != "" {
		c.Failure = result.Failure
		return c, nil
	}

	val, ok := result.Metrics[metricName]
	if !ok {
		return c, fmt.Errorf("metric %q not recorded: %w", metricName, dynamo.ErrConfiguration)
	}
	if !math.IsNaN(val) {
		c.Value = val
	}
	return c, nil
}

// ScaleGains multiplies each entry of base by the factor stored under
// the matching GainParams name. Missing names keep a factor of 1.
func ScaleGains(base control.Gains, params map[string]float64) control.Gains {
	factors := control.Gains{1, 1, 1, 1}
	for i, name := range GainParams {
		if f, ok := params[name]; ok {
			factors[i] = f
		}
	}
	return base.Scale(factors)
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}
