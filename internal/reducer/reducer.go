package reducer

import (
	"fmt"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Reducer is one behavioral group's projection + clustering pipeline.
type Reducer struct {
	group      string
	arity      int
	projection *Projection
	clusterer  *Clusterer
}

// New pairs a projection with a clusterer for group. The projection must
// have been fitted on arity inputs and the clusterer on its output.
func New(group string, arity int, p *Projection, c *Clusterer) (*Reducer, error) {
	if p == nil || c == nil {
		return nil, fmt.Errorf("reducer %s: projection and clusterer are required", group)
	}
	if p.InputDim() != arity {
		return nil, fmt.Errorf("reducer %s: projection input: %w", group,
			&domain.ShapeError{Stage: "reducer/" + group, Expected: arity, Actual: p.InputDim()})
	}
	if c.Dim() != p.OutputDim() {
		return nil, fmt.Errorf("reducer %s: clusterer width: %w", group,
			&domain.ShapeError{Stage: "reducer/" + group, Expected: p.OutputDim(), Actual: c.Dim()})
	}
	return &Reducer{group: group, arity: arity, projection: p, clusterer: c}, nil
}

// Group returns the behavioral group name.
func (r *Reducer) Group() string {
	return r.group
}

// Arity returns the number of raw inputs the reducer expects.
func (r *Reducer) Arity() int {
	return r.arity
}

// Components returns the projection width.
func (r *Reducer) Components() int {
	return r.projection.OutputDim()
}

// Reduce projects raw and assigns a cluster. raw is positional and must
// have exactly Arity entries; it is never truncated or padded.
func (r *Reducer) Reduce(raw []float64) (domain.ReducerOutput, error) {
	if len(raw) != r.arity {
		return domain.ReducerOutput{}, &domain.ShapeError{Stage: "reducer/" + r.group, Expected: r.arity, Actual: len(raw)}
	}

	projected, err := r.projection.Transform(raw)
	if err != nil {
		return domain.ReducerOutput{}, fmt.Errorf("reducer %s: %w", r.group, err)
	}

	label, err := r.clusterer.Assign(projected)
	if err != nil {
		return domain.ReducerOutput{}, fmt.Errorf("reducer %s: %w", r.group, err)
	}

	return domain.ReducerOutput{
		Group:      r.group,
		Projection: projected,
		Cluster:    label,
	}, nil
}

// Set holds the three group reducers.
type Set struct {
	Velocity   *Reducer
	TimeGap    *Reducer
	Behavioral *Reducer
}
