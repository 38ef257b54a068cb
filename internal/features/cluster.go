package features

import (
	"math"
	"strconv"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// ProductCodeOffset is subtracted from the encoded product code in the
// clustering-augmented schema.
const ProductCodeOffset = 66

// Projection widths the clustering-augmented schema was trained with.
const (
	ClusterBehavioralComponents = 10
	ClusterVelocityComponents   = 3
	ClusterTimeGapComponents    = 5
)

// Derived column names.
const (
	ColClustersV       = "clusters_V"
	ColClustersC       = "clusters_C"
	ColClustersD       = "clusters_D"
	ColCountCluster    = "count_cluster"
	ColFirstValueAddr1 = "first_value_addr1"
	ColAmtToMeanCardID = "TransactionAmt_to_mean_card_id"
	ColAmtToMeanCard1  = "TransactionAmt_to_mean_card1"
	ColAmtToMeanCard4  = "TransactionAmt_to_mean_card4"
)

type clusterRow struct {
	rec  *domain.CleanedRecord
	outs *domain.ReducerOutputs

	diff, ratio, deviation float64
}

type clusterColumn struct {
	name     string
	requires []string
	value    func(r *clusterRow) float64
}

func scalar(name string, value func(r *domain.CleanedRecord) float64) clusterColumn {
	return clusterColumn{
		name:     name,
		requires: []string{name},
		value:    func(r *clusterRow) float64 { return value(r.rec) },
	}
}

func projected(prefix string, n int, fields []string, pick func(o *domain.ReducerOutputs) []float64) []clusterColumn {
	cols := make([]clusterColumn, n)
	for i := range cols {
		cols[i] = clusterColumn{
			name:     prefix + strconv.Itoa(i+1),
			requires: fields,
			value:    func(r *clusterRow) float64 { return pick(r.outs)[i] },
		}
	}
	return cols
}

func clusterLabel(name string, fields []string, pick func(o *domain.ReducerOutputs) int) clusterColumn {
	return clusterColumn{
		name:     name,
		requires: fields,
		value:    func(r *clusterRow) float64 { return float64(pick(r.outs)) },
	}
}

func billing(name string, pick func(b domain.BillingFlags) float64) clusterColumn {
	return scalar(name, func(r *domain.CleanedRecord) float64 { return pick(r.Billing) })
}

var ratioInputs = []string{domain.KeyTransactionAmt, domain.KeyCardMin, domain.KeyCardMax}

// clusterLayout is the positional column table of the clustering-augmented
// schema. Its order is load-bearing: the classifier reads by position.
var clusterLayout = buildClusterLayout()

func buildClusterLayout() []clusterColumn {
	var cols []clusterColumn
	add := func(c ...clusterColumn) { cols = append(cols, c...) }

	add(
		scalar(domain.KeyTransactionID, func(r *domain.CleanedRecord) float64 { return float64(r.TransactionID) }),
		scalar(domain.KeyTransactionAmt, func(r *domain.CleanedRecord) float64 { return math.Log(r.TransactionAmt) }),
		scalar(domain.KeyProductCD, func(r *domain.CleanedRecord) float64 {
			return float64(r.Encoded.ProductCD - ProductCodeOffset)
		}),
		scalar(domain.KeyCard1, func(r *domain.CleanedRecord) float64 { return r.Card.Card1 }),
		scalar(domain.KeyCard2, func(r *domain.CleanedRecord) float64 { return r.Card.Card2 }),
		scalar(domain.KeyCard4, func(r *domain.CleanedRecord) float64 { return r.Card.Card4 }),
		scalar(domain.KeyCard6, func(r *domain.CleanedRecord) float64 { return r.Card.Card6 }),
		scalar(domain.KeyAddr1, func(r *domain.CleanedRecord) float64 { return r.Addr1 }),
		scalar(domain.KeyAddr2, func(r *domain.CleanedRecord) float64 { return r.Addr2 }),
		scalar(domain.KeyDist1, func(r *domain.CleanedRecord) float64 { return r.Dist1 }),
		scalar(domain.KeyPEmailDomain, func(r *domain.CleanedRecord) float64 { return float64(r.Encoded.PEmailDomain) }),
		scalar(domain.KeyREmailDomain, func(r *domain.CleanedRecord) float64 { return float64(r.Encoded.REmailDomain) }),
		billing("M1", func(b domain.BillingFlags) float64 { return b.M1 }),
		billing("M4", func(b domain.BillingFlags) float64 { return b.M4 }),
		billing("M5", func(b domain.BillingFlags) float64 { return b.M5 }),
		billing("M6", func(b domain.BillingFlags) float64 { return b.M6 }),
		billing("M7", func(b domain.BillingFlags) float64 { return b.M7 }),
	)

	add(projected(fullPCABehavioral, ClusterBehavioralComponents, domain.BehavioralFields,
		func(o *domain.ReducerOutputs) []float64 { return o.Behavioral.Projection })...)
	add(clusterLabel(ColClustersV, domain.BehavioralFields,
		func(o *domain.ReducerOutputs) int { return o.Behavioral.Cluster }))

	add(projected(fullPCAVelocity, ClusterVelocityComponents, domain.VelocityFields,
		func(o *domain.ReducerOutputs) []float64 { return o.Velocity.Projection })...)
	add(clusterLabel(ColClustersC, domain.VelocityFields,
		func(o *domain.ReducerOutputs) int { return o.Velocity.Cluster }))

	add(
		scalar(domain.KeyDeviceType, func(r *domain.CleanedRecord) float64 { return r.DeviceType }),
		scalar(domain.KeyDeviceInfo, func(r *domain.CleanedRecord) float64 { return float64(r.Encoded.DeviceInfo) }),
		scalar(domain.KeyWeekdays, func(r *domain.CleanedRecord) float64 { return r.Weekdays }),
		scalar(domain.KeyHours, func(r *domain.CleanedRecord) float64 { return r.Hours }),
		scalar(domain.KeyDays, func(r *domain.CleanedRecord) float64 { return r.Days }),
		scalar(domain.KeyMeanAmount, func(r *domain.CleanedRecord) float64 { return r.Amounts.Mean }),
		scalar(domain.KeyMinAmount, func(r *domain.CleanedRecord) float64 { return r.Amounts.Min }),
		scalar(domain.KeyMaxAmount, func(r *domain.CleanedRecord) float64 { return r.Amounts.Max }),
		scalar(domain.KeyStdAmount, func(r *domain.CleanedRecord) float64 { return r.Amounts.Std }),
	)

	add(projected(fullPCATimeGap, ClusterTimeGapComponents, domain.TimeGapFields,
		func(o *domain.ReducerOutputs) []float64 { return o.TimeGap.Projection })...)
	add(clusterLabel(ColClustersD, domain.TimeGapFields,
		func(o *domain.ReducerOutputs) int { return o.TimeGap.Cluster }))

	allGroups := append(append(append([]string{}, domain.VelocityFields...), domain.TimeGapFields...), domain.BehavioralFields...)
	add(clusterLabel(ColCountCluster, allGroups,
		func(o *domain.ReducerOutputs) int { return o.CombinedCluster }))

	add(
		clusterColumn{
			name:     ColFirstValueAddr1,
			requires: []string{domain.KeyAddr2},
			value:    func(r *clusterRow) float64 { return LeadingDigit(r.rec.Addr2) },
		},
		clusterColumn{name: ColAmtToMeanCardID, requires: ratioInputs, value: func(r *clusterRow) float64 { return r.diff }},
		clusterColumn{name: ColAmtToMeanCard1, requires: ratioInputs, value: func(r *clusterRow) float64 { return r.ratio }},
		clusterColumn{name: ColAmtToMeanCard4, requires: ratioInputs, value: func(r *clusterRow) float64 { return r.deviation }},
	)

	return cols
}

// ClusterColumns returns the clustering-augmented column names in order.
func ClusterColumns() []string {
	names := make([]string, len(clusterLayout))
	for i, c := range clusterLayout {
		names[i] = c.name
	}
	return names
}

// ClusterAssembler builds the hand-ordered clustering-augmented vector.
// Every column is mandatory: a field the source did not supply is a
// MissingFieldError, never a default.
type ClusterAssembler struct{}

// NewClusterAssembler returns the clustering-augmented assembler.
func NewClusterAssembler() *ClusterAssembler {
	return &ClusterAssembler{}
}

// Variant implements Assembler.
func (a *ClusterAssembler) Variant() domain.SchemaVariant {
	return domain.VariantClusterAugmented
}

// Columns implements Assembler.
func (a *ClusterAssembler) Columns() []string {
	return ClusterColumns()
}

// Assemble implements Assembler.
func (a *ClusterAssembler) Assemble(rec *domain.CleanedRecord, outs domain.ReducerOutputs) (domain.EngineeredVector, error) {
	if err := checkComponents(outs); err != nil {
		return domain.EngineeredVector{}, err
	}

	// The schema carries the amount in log space; the ratios use it plain.
	if !rec.IsDefaulted(domain.KeyTransactionAmt) && rec.TransactionAmt <= 0 {
		return domain.EngineeredVector{}, &domain.InvalidFieldError{
			Field:  domain.KeyTransactionAmt,
			Reason: "log-scaled amount requires a positive value",
		}
	}

	row := &clusterRow{rec: rec, outs: &outs}
	row.diff, row.ratio, row.deviation = AmountRatios(rec.TransactionAmt, rec.CardRange.Min, rec.CardRange.Max)

	values := make([]float64, len(clusterLayout))
	for i, col := range clusterLayout {
		for _, key := range col.requires {
			if rec.IsDefaulted(key) {
				return domain.EngineeredVector{}, &domain.MissingFieldError{Field: key}
			}
		}
		values[i] = col.value(row)
	}

	if len(values) != domain.ClusterAugmentedSchemaWidth {
		return domain.EngineeredVector{}, &domain.ShapeError{
			Stage:    "assembler/cluster",
			Expected: domain.ClusterAugmentedSchemaWidth,
			Actual:   len(values),
		}
	}
	return domain.EngineeredVector{Variant: domain.VariantClusterAugmented, Values: values}, nil
}

func checkComponents(outs domain.ReducerOutputs) error {
	checks := []struct {
		group string
		want  int
		got   []float64
	}{
		{domain.GroupBehavioral, ClusterBehavioralComponents, outs.Behavioral.Projection},
		{domain.GroupVelocity, ClusterVelocityComponents, outs.Velocity.Projection},
		{domain.GroupTimeGap, ClusterTimeGapComponents, outs.TimeGap.Projection},
	}
	for _, c := range checks {
		if len(c.got) != c.want {
			return &domain.ShapeError{Stage: "assembler/cluster/" + c.group, Expected: c.want, Actual: len(c.got)}
		}
	}
	return nil
}
