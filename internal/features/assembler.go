package features

import (
	"fmt"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Assembler builds the engineered vector for one schema variant.
type Assembler interface {
	// Variant returns the schema variant the assembler produces.
	Variant() domain.SchemaVariant

	// Columns returns the column names in vector order.
	Columns() []string

	// Assemble builds the vector from a cleaned record and the reducer
	// outputs for that record.
	Assemble(rec *domain.CleanedRecord, outs domain.ReducerOutputs) (domain.EngineeredVector, error)
}

// NewAssembler returns the assembler for variant. schema is the
// training-time column list and is only used by the full variant.
func NewAssembler(variant domain.SchemaVariant, schema []string) (Assembler, error) {
	switch variant {
	case domain.VariantFull:
		return NewFullAssembler(schema)
	case domain.VariantClusterAugmented:
		return NewClusterAssembler(), nil
	default:
		return nil, fmt.Errorf("unknown schema variant %q", variant)
	}
}
