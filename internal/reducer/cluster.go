package reducer

import (
	"fmt"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// Clusterer assigns a projected point to its nearest learned centroid.
type Clusterer struct {
	centroids *mat.Dense
}

// NewClusterer validates and builds a nearest-centroid clusterer.
func NewClusterer(centroids [][]float64) (*Clusterer, error) {
	if len(centroids) == 0 {
		return nil, fmt.Errorf("clusterer: no centroids")
	}
	dim := len(centroids[0])
	if dim == 0 {
		return nil, fmt.Errorf("clusterer: zero-width centroids")
	}

	data := make([]float64, 0, len(centroids)*dim)
	for i, row := range centroids {
		if len(row) != dim {
			return nil, fmt.Errorf("clusterer: centroid %d has width %d, expected %d", i, len(row), dim)
		}
		data = append(data, row...)
	}
	return &Clusterer{centroids: mat.NewDense(len(centroids), dim, data)}, nil
}

// Dim returns the centroid width.
func (c *Clusterer) Dim() int {
	_, dim := c.centroids.Dims()
	return dim
}

// K returns the number of clusters.
func (c *Clusterer) K() int {
	k, _ := c.centroids.Dims()
	return k
}

// Assign returns the index of the nearest centroid by squared Euclidean
// distance. Ties resolve to the lowest index.
func (c *Clusterer) Assign(p []float64) (int, error) {
	if len(p) != c.Dim() {
		return 0, &domain.ShapeError{Stage: "clustering", Expected: c.Dim(), Actual: len(p)}
	}

	point := mat.NewVecDense(len(p), p)
	var diff mat.VecDense

	best := 0
	bestDist := 0.0
	for i := range c.K() {
		diff.SubVec(point, c.centroids.RowView(i))
		d := mat.Dot(&diff, &diff)
		if i == 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, nil
}
