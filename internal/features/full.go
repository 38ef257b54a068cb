package features

import (
	"fmt"
	"strconv"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Optional projection columns the full schema may carry.
const (
	fullPCAVelocity   = "PCA_C_"
	fullPCATimeGap    = "PCA_D_"
	fullPCABehavioral = "PCA_V_"
)

// FullAssembler fills the wide schema loaded from the scaler artifact.
// It tolerates any missing input: absent fields stay at their default and
// unused columns stay zero.
type FullAssembler struct {
	columns []string
	index   map[string]int
}

// NewFullAssembler indexes schema, which must have FullSchemaWidth unique
// column names.
func NewFullAssembler(schema []string) (*FullAssembler, error) {
	if len(schema) != domain.FullSchemaWidth {
		return nil, &domain.ShapeError{Stage: "assembler/full", Expected: domain.FullSchemaWidth, Actual: len(schema)}
	}

	index := make(map[string]int, len(schema))
	for i, name := range schema {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("assembler/full: duplicate column %q", name)
		}
		index[name] = i
	}

	columns := make([]string, len(schema))
	copy(columns, schema)
	return &FullAssembler{columns: columns, index: index}, nil
}

// Variant implements Assembler.
func (a *FullAssembler) Variant() domain.SchemaVariant {
	return domain.VariantFull
}

// Columns implements Assembler.
func (a *FullAssembler) Columns() []string {
	out := make([]string, len(a.columns))
	copy(out, a.columns)
	return out
}

// Assemble implements Assembler.
func (a *FullAssembler) Assemble(rec *domain.CleanedRecord, outs domain.ReducerOutputs) (domain.EngineeredVector, error) {
	values := make([]float64, len(a.columns))
	put := func(name string, v float64) {
		if i, ok := a.index[name]; ok {
			values[i] = v
		}
	}

	put(domain.KeyTransactionID, float64(rec.TransactionID))
	put(domain.KeyTransactionDT, rec.TransactionDT)
	put(domain.KeyTransactionAmt, rec.TransactionAmt)
	put(domain.KeyProductCD, float64(rec.Encoded.ProductCD))

	put(domain.KeyCard1, rec.Card.Card1)
	put(domain.KeyCard2, rec.Card.Card2)
	put(domain.KeyCard3, rec.Card.Card3)
	put(domain.KeyCard4, rec.Card.Card4)
	put(domain.KeyCard5, rec.Card.Card5)
	put(domain.KeyCard6, rec.Card.Card6)
	put(domain.KeyAddr1, rec.Addr1)
	put(domain.KeyAddr2, rec.Addr2)
	put(domain.KeyDist1, rec.Dist1)

	put(domain.KeyPEmailDomain, float64(rec.Encoded.PEmailDomain))
	put(domain.KeyREmailDomain, float64(rec.Encoded.REmailDomain))
	put(domain.KeyDeviceInfo, float64(rec.Encoded.DeviceInfo))
	put(domain.KeyDeviceType, rec.DeviceType)

	put(domain.KeyHours, rec.Hours)
	put(domain.KeyDays, rec.Days)
	put(domain.KeyWeekdays, rec.Weekdays)
	put(domain.KeyMeanAmount, rec.Amounts.Mean)
	put(domain.KeyMinAmount, rec.Amounts.Min)
	put(domain.KeyMaxAmount, rec.Amounts.Max)
	put(domain.KeyStdAmount, rec.Amounts.Std)
	put(domain.KeyCardMin, rec.CardRange.Min)
	put(domain.KeyCardMax, rec.CardRange.Max)

	// Sub-mapping entries land in any column of the same name. A value
	// that is not numeric becomes 0.
	for _, sub := range []map[string]any{rec.VData, rec.CData, rec.DData, rec.MData} {
		for k, v := range sub {
			put(k, CoerceOrZero(v))
		}
	}

	putProjection := func(prefix string, p []float64) {
		for i, v := range p {
			put(prefix+strconv.Itoa(i+1), v)
		}
	}
	putProjection(fullPCAVelocity, outs.Velocity.Projection)
	putProjection(fullPCATimeGap, outs.TimeGap.Projection)
	putProjection(fullPCABehavioral, outs.Behavioral.Projection)
	put(ColClustersC, float64(outs.Velocity.Cluster))
	put(ColClustersD, float64(outs.TimeGap.Cluster))
	put(ColClustersV, float64(outs.Behavioral.Cluster))
	put(ColCountCluster, float64(outs.CombinedCluster))

	return domain.EngineeredVector{Variant: domain.VariantFull, Values: values}, nil
}
