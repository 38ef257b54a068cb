package artifact

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/opensource-finance/fraudlens/internal/classifier"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/encoder"
	"github.com/opensource-finance/fraudlens/internal/features"
)

// Demo artifacts are small, deterministic stand-ins for the trained ones.
// They let a fresh deployment and the test suites run the whole pipeline
// without the offline training job.

// DemoSchema returns a full-width schema: the canonical keys, the C, D
// and M columns, then V columns up to the full width.
func DemoSchema() []string {
	names := []string{
		domain.KeyTransactionID, domain.KeyTransactionDT, domain.KeyTransactionAmt, domain.KeyProductCD,
		domain.KeyCard1, domain.KeyCard2, domain.KeyCard3, domain.KeyCard4, domain.KeyCard5, domain.KeyCard6,
		domain.KeyAddr1, domain.KeyAddr2, domain.KeyDist1,
		domain.KeyPEmailDomain, domain.KeyREmailDomain, domain.KeyDeviceInfo, domain.KeyDeviceType,
		domain.KeyHours, domain.KeyDays, domain.KeyWeekdays,
		domain.KeyMeanAmount, domain.KeyMinAmount, domain.KeyMaxAmount, domain.KeyStdAmount,
		domain.KeyCardMin, domain.KeyCardMax,
	}
	for i := 1; i <= 14; i++ {
		names = append(names, fmt.Sprintf("C%d", i))
	}
	for i := 1; i <= 15; i++ {
		names = append(names, fmt.Sprintf("D%d", i))
	}
	for i := 1; i <= 9; i++ {
		names = append(names, fmt.Sprintf("M%d", i))
	}
	for i := 1; len(names) < domain.FullSchemaWidth; i++ {
		names = append(names, fmt.Sprintf("V%d", i))
	}
	return names
}

// DemoClasses are the demo encoder class lists.
var DemoClasses = map[string][]string{
	encoder.CategoryProductType: {"clothing", "healthcare", "others", "retail", "subscription", "widgets"},
	encoder.CategoryEmailDomain: {"aol.com", "gmail.com", "hotmail.com", "icloud.com", "outlook.com", "yahoo.com"},
	encoder.CategoryDeviceInfo:  {"Android", "Linux", "MacOS", "Windows", "iOS Device"},
}

type split struct {
	column    string
	threshold float64
	below     float64
	above     float64
	missing   bool // NaN routes below
}

// demoPrior is the margin of a 0.2 base rate, ln(0.2/0.8).
var demoPrior = math.Log(0.25)

var (
	demoFullSplits = []split{
		{domain.KeyTransactionAmt, 999.5, -1.0, 1.2, true},
		{domain.KeyDist1, 499.5, -0.3, 0.9, true},
		{"V41", 0.5, -0.2, 0.8, true},
		{"C14", 0.5, -0.1, 0.4, true},
	}
	demoClusterSplits = []split{
		{features.ColAmtToMeanCard1, 1.5, -1.2, 1.4, true},
		{features.ColCountCluster, 2.5, -0.4, 0.6, true},
		{domain.KeyDist1, 499.5, -0.3, 0.9, true},
		{domain.KeyDeviceType, 0, 0.5, -0.2, false},
	}
)

// demoModel encodes one stump per split plus a constant tree carrying
// the prior.
func demoModel(columns []string, splits []split) ([]byte, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}

	trees := []classifier.Tree{{Nodes: []classifier.Node{
		{Feature: 0, Threshold: 0, Yes: 1, No: 2, DefaultYes: true},
		{IsLeaf: true, Leaf: demoPrior},
		{IsLeaf: true, Leaf: demoPrior},
	}}}
	for _, s := range splits {
		col, ok := index[s.column]
		if !ok {
			return nil, fmt.Errorf("demo model: no column %q", s.column)
		}
		trees = append(trees, classifier.Tree{Nodes: []classifier.Node{
			{Feature: col, Threshold: s.threshold, Yes: 1, No: 2, DefaultYes: s.missing},
			{IsLeaf: true, Leaf: s.below},
			{IsLeaf: true, Leaf: s.above},
		}})
	}
	return classifier.EncodeModel(len(columns), trees)
}

// DemoArtifacts builds a complete, mutually consistent artifact set for
// variant.
func DemoArtifacts(variant domain.SchemaVariant) (MemorySource, error) {
	var (
		columns []string
		splits  []split
	)
	switch variant {
	case domain.VariantFull:
		columns, splits = DemoSchema(), demoFullSplits
	case domain.VariantClusterAugmented:
		columns, splits = features.ClusterColumns(), demoClusterSplits
	default:
		return nil, fmt.Errorf("unknown schema variant %q", variant)
	}

	model, err := demoModel(columns, splits)
	if err != nil {
		return nil, err
	}

	payloads := map[string]any{
		NameEncoders: EncodersFile{Classes: DemoClasses},
	}
	if variant == domain.VariantFull {
		payloads[NameSchema] = SchemaFile{FeatureNames: columns}
	}
	for _, g := range groups {
		payloads[g.pca] = demoProjection(len(g.fields), g.components)
		payloads[g.km] = demoClustering(3, g.components)
	}

	src := MemorySource{NameModel: model}
	for name, v := range payloads {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		src[name] = data
	}
	return src, nil
}

// demoProjection selects input i%in for component i.
func demoProjection(in, out int) ProjectionFile {
	components := make([][]float64, out)
	for i := range components {
		components[i] = make([]float64, in)
		components[i][i%in] = 1
	}
	return ProjectionFile{Mean: make([]float64, in), Components: components}
}

// demoClustering places k centroids evenly on the diagonal of [0,1]^dim.
func demoClustering(k, dim int) ClusteringFile {
	centroids := make([][]float64, k)
	for i := range centroids {
		centroids[i] = make([]float64, dim)
		for j := range centroids[i] {
			centroids[i][j] = float64(i) / float64(k-1)
		}
	}
	return ClusteringFile{Centroids: centroids}
}
