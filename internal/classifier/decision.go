package classifier

import (
	"fmt"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// DefaultThreshold is the probability at or above which a transaction is
// labeled fraud.
const DefaultThreshold = 0.50

// Classifier scores engineered vectors with a model and applies the
// decision threshold.
type Classifier struct {
	model     *Model
	threshold float64
}

// New creates a classifier. threshold must lie in [0,1].
func New(model *Model, threshold float64) (*Classifier, error) {
	if model == nil {
		return nil, fmt.Errorf("classifier: model is required")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("classifier: threshold must be in [0,1], got %v", threshold)
	}
	return &Classifier{model: model, threshold: threshold}, nil
}

// NumFeatures returns the width the classifier accepts.
func (c *Classifier) NumFeatures() int {
	return c.model.NumFeatures()
}

// Threshold returns the decision threshold.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Score checks the vector width, then predicts and decides. A width
// mismatch is a ShapeError and the model is never invoked.
func (c *Classifier) Score(v domain.EngineeredVector) (domain.FraudScore, error) {
	if v.Len() != c.model.NumFeatures() {
		return domain.FraudScore{}, &domain.ShapeError{Stage: "classifier", Expected: c.model.NumFeatures(), Actual: v.Len()}
	}

	p, err := c.model.Probability(v.Values)
	if err != nil {
		return domain.FraudScore{}, err
	}
	return Decide(p, c.threshold), nil
}

// Decide labels probability p against threshold: 1 iff p >= threshold.
func Decide(p, threshold float64) domain.FraudScore {
	label := 0
	if p >= threshold {
		label = 1
	}
	return domain.FraudScore{
		Probability: p,
		Label:       label,
		Threshold:   threshold,
	}
}
