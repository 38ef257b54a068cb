// Package classifier evaluates the pre-trained gradient-boosted tree
// ensemble and turns its probability into a fraud decision.
package classifier

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/dmitryikh/leaves"
	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Model is an immutable binary-logistic XGBoost gbtree ensemble.
type Model struct {
	ensemble *leaves.Ensemble
}

// LoadModel parses an XGBoost binary model. Only single-output
// binary:logistic gbtree models are accepted.
func LoadModel(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("model: empty payload")
	}

	ensemble, err := leaves.XGEnsembleFromReader(bufio.NewReader(bytes.NewReader(data)), true)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	if ensemble.NOutputGroups() != 1 {
		return nil, fmt.Errorf("model: expected one output group, got %d", ensemble.NOutputGroups())
	}
	if ensemble.NFeatures() <= 0 {
		return nil, fmt.Errorf("model: no features")
	}
	return &Model{ensemble: ensemble}, nil
}

// NumFeatures returns the input width the model was trained on.
func (m *Model) NumFeatures() int {
	return m.ensemble.NFeatures()
}

// NumTrees returns the ensemble size.
func (m *Model) NumTrees() int {
	return m.ensemble.NEstimators()
}

// Probability returns the fraud probability for x.
func (m *Model) Probability(x []float64) (float64, error) {
	if len(x) != m.NumFeatures() {
		return 0, &domain.ShapeError{Stage: "classifier", Expected: m.NumFeatures(), Actual: len(x)}
	}
	return m.ensemble.PredictSingle(x, 0), nil
}
