package domain

// SchemaVariant selects one of the two incompatible feature schemas.
type SchemaVariant string

const (
	// VariantFull is the wide 402-column schema taken from the scaler.
	VariantFull SchemaVariant = "full"

	// VariantClusterAugmented is the hand-ordered 52-column schema with
	// projection and cluster features.
	VariantClusterAugmented SchemaVariant = "cluster"
)

// Valid reports whether v names a known variant.
func (v SchemaVariant) Valid() bool {
	return v == VariantFull || v == VariantClusterAugmented
}

// Schema widths fixed by the classifiers' training-time schemas.
const (
	FullSchemaWidth             = 402
	ClusterAugmentedSchemaWidth = 52
)

// Width returns the engineered vector length for the variant.
func (v SchemaVariant) Width() int {
	switch v {
	case VariantFull:
		return FullSchemaWidth
	case VariantClusterAugmented:
		return ClusterAugmentedSchemaWidth
	default:
		return 0
	}
}

// EngineeredVector is the ordered numeric input to the classifier.
type EngineeredVector struct {
	Variant SchemaVariant
	Values  []float64
}

// Len returns the number of features.
func (v EngineeredVector) Len() int {
	return len(v.Values)
}

// Behavioral group names.
const (
	GroupVelocity   = "velocity"
	GroupTimeGap    = "timegap"
	GroupBehavioral = "behavioral"
)

// ReducerOutput is one group's projection and cluster label.
type ReducerOutput struct {
	Group      string
	Projection []float64
	Cluster    int
}

// ReducerOutputs carries the three group outputs plus the combined index.
type ReducerOutputs struct {
	Velocity   ReducerOutput
	TimeGap    ReducerOutput
	Behavioral ReducerOutput

	// CombinedCluster is the sum of the three cluster labels.
	CombinedCluster int
}

// FraudScore is the final prediction.
type FraudScore struct {
	Probability float64 `json:"probability"`
	Label       int     `json:"label"`
	Threshold   float64 `json:"threshold"`
}

// IsFraud reports whether the label marks the transaction as fraud.
func (s FraudScore) IsFraud() bool {
	return s.Label == 1
}

// Stage is a state of the inference state machine.
type Stage string

const (
	StageCollecting Stage = "collecting"
	StageCleaning   Stage = "cleaning"
	StageReducing   Stage = "reducing"
	StageAssembling Stage = "assembling"
	StageScoring    Stage = "scoring"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)
