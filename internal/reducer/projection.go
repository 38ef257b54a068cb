// Package reducer implements the behavioral reducers: a fitted linear
// projection followed by a nearest-centroid cluster assignment.
package reducer

import (
	"fmt"
	"math"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// Projection is a fitted linear dimensionality reduction.
// Transform computes components · (x - mean), scaled per component by
// 1/sqrt(explained variance) when the projection was fitted with whitening.
type Projection struct {
	mean       *mat.VecDense
	components *mat.Dense
	scale      *mat.VecDense
}

// NewProjection validates and builds a projection. components holds one
// row per output component; every row must have len(mean) entries.
func NewProjection(mean []float64, components [][]float64, explainedVariance []float64, whiten bool) (*Projection, error) {
	if len(mean) == 0 {
		return nil, fmt.Errorf("projection: empty mean vector")
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("projection: no components")
	}

	weights := make([]float64, 0, len(components)*len(mean))
	for i, row := range components {
		if len(row) != len(mean) {
			return nil, fmt.Errorf("projection: component %d has %d weights, expected %d", i, len(row), len(mean))
		}
		weights = append(weights, row...)
	}

	p := &Projection{
		mean:       mat.NewVecDense(len(mean), append([]float64(nil), mean...)),
		components: mat.NewDense(len(components), len(mean), weights),
	}

	if whiten {
		if len(explainedVariance) != len(components) {
			return nil, fmt.Errorf("projection: whitening needs %d variances, got %d", len(components), len(explainedVariance))
		}
		scale := make([]float64, len(explainedVariance))
		for i, v := range explainedVariance {
			if v <= 0 {
				return nil, fmt.Errorf("projection: non-positive variance at component %d", i)
			}
			scale[i] = 1 / math.Sqrt(v)
		}
		p.scale = mat.NewVecDense(len(scale), scale)
	}

	return p, nil
}

// InputDim returns the arity the projection was fitted with.
func (p *Projection) InputDim() int {
	return p.mean.Len()
}

// OutputDim returns the number of components.
func (p *Projection) OutputDim() int {
	r, _ := p.components.Dims()
	return r
}

// Transform projects x. x must have exactly InputDim entries.
func (p *Projection) Transform(x []float64) ([]float64, error) {
	if len(x) != p.InputDim() {
		return nil, &domain.ShapeError{Stage: "projection", Expected: p.InputDim(), Actual: len(x)}
	}

	var centered, out mat.VecDense
	centered.SubVec(mat.NewVecDense(len(x), x), p.mean)
	out.MulVec(p.components, &centered)

	if p.scale != nil {
		var scaled mat.VecDense
		scaled.MulElemVec(&out, p.scale)
		return scaled.RawVector().Data, nil
	}
	return out.RawVector().Data, nil
}
