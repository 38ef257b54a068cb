package artifact

import (
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/fraudlens/internal/classifier"
	"github.com/opensource-finance/fraudlens/internal/encoder"
	"github.com/opensource-finance/fraudlens/internal/reducer"
)

// SchemaFile is the scaler's training-time column list.
type SchemaFile struct {
	FeatureNames []string `json:"feature_names"`
}

// EncodersFile holds the fitted class list of each category.
type EncodersFile struct {
	Classes map[string][]string `json:"classes"`
}

// ProjectionFile is a fitted linear projection.
type ProjectionFile struct {
	Mean              []float64   `json:"mean"`
	Components        [][]float64 `json:"components"`
	ExplainedVariance []float64   `json:"explained_variance,omitempty"`
	Whiten            bool        `json:"whiten,omitempty"`
}

// ClusteringFile is a fitted nearest-centroid partition.
type ClusteringFile struct {
	Centroids [][]float64 `json:"centroids"`
}

// requiredCategories must be present in the encoders artifact.
var requiredCategories = []string{
	encoder.CategoryProductType,
	encoder.CategoryEmailDomain,
	encoder.CategoryDeviceInfo,
}

// DecodeSchema parses a schema artifact.
func DecodeSchema(data []byte) ([]string, error) {
	var f SchemaFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if len(f.FeatureNames) == 0 {
		return nil, fmt.Errorf("schema has no feature names")
	}

	seen := make(map[string]bool, len(f.FeatureNames))
	for _, name := range f.FeatureNames {
		if name == "" || seen[name] {
			return nil, fmt.Errorf("schema: empty or duplicate feature name %q", name)
		}
		seen[name] = true
	}
	return f.FeatureNames, nil
}

// DecodeEncoders parses an encoders artifact.
func DecodeEncoders(data []byte) (*encoder.Registry, error) {
	var f EncodersFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode encoders: %w", err)
	}
	for _, c := range requiredCategories {
		if _, ok := f.Classes[c]; !ok {
			return nil, fmt.Errorf("encoders: missing category %q", c)
		}
	}
	return encoder.NewRegistry(f.Classes)
}

// DecodeProjection parses a projection artifact.
func DecodeProjection(data []byte) (*reducer.Projection, error) {
	var f ProjectionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode projection: %w", err)
	}
	return reducer.NewProjection(f.Mean, f.Components, f.ExplainedVariance, f.Whiten)
}

// DecodeClustering parses a clustering artifact.
func DecodeClustering(data []byte) (*reducer.Clusterer, error) {
	var f ClusteringFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode clustering: %w", err)
	}
	return reducer.NewClusterer(f.Centroids)
}

// DecodeModel parses a model artifact: an XGBoost binary gbtree model
// trained with the binary:logistic objective.
func DecodeModel(data []byte) (*classifier.Model, error) {
	m, err := classifier.LoadModel(data)
	if err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return m, nil
}

// Validate decodes payload as the artifact kind implied by name.
func Validate(name string, payload []byte) error {
	var err error
	switch name {
	case NameSchema:
		_, err = DecodeSchema(payload)
	case NameEncoders:
		_, err = DecodeEncoders(payload)
	case NamePCAVelocity, NamePCATimeGap, NamePCABehavioral:
		_, err = DecodeProjection(payload)
	case NameKMVelocity, NameKMTimeGap, NameKMBehavioral:
		_, err = DecodeClustering(payload)
	case NameModel:
		_, err = DecodeModel(payload)
	default:
		err = fmt.Errorf("unknown artifact %q", name)
	}
	return err
}
