package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/fraudlens/internal/classifier"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/encoder"
	"github.com/opensource-finance/fraudlens/internal/features"
	"github.com/opensource-finance/fraudlens/internal/reducer"
	"golang.org/x/sync/errgroup"
)

// Registry holds every artifact a deployment needs. It is built once and
// never mutated, so it is shared across requests without locking.
type Registry struct {
	variant  domain.SchemaVariant
	schema   []string
	encoders *encoder.Registry
	reducers reducer.Set
	model    *classifier.Model
}

// NewRegistry assembles a registry and cross-checks the artifacts against
// each other and against variant. schema is required for the full variant
// and ignored otherwise.
func NewRegistry(variant domain.SchemaVariant, schema []string, enc *encoder.Registry, reducers reducer.Set, model *classifier.Model) (*Registry, error) {
	if !variant.Valid() {
		return nil, fmt.Errorf("unknown schema variant %q", variant)
	}
	if enc == nil {
		return nil, &domain.ArtifactLoadError{Artifact: NameEncoders, Err: fmt.Errorf("missing")}
	}
	if reducers.Velocity == nil || reducers.TimeGap == nil || reducers.Behavioral == nil {
		return nil, fmt.Errorf("all three reducers are required")
	}
	if model == nil {
		return nil, &domain.ArtifactLoadError{Artifact: NameModel, Err: fmt.Errorf("missing")}
	}

	if model.NumFeatures() != variant.Width() {
		return nil, &domain.ArtifactLoadError{
			Artifact: NameModel,
			Err:      &domain.ShapeError{Stage: "model/" + string(variant), Expected: variant.Width(), Actual: model.NumFeatures()},
		}
	}

	reg := &Registry{
		variant:  variant,
		encoders: enc,
		reducers: reducers,
		model:    model,
	}

	if variant == domain.VariantFull {
		if len(schema) != model.NumFeatures() {
			return nil, &domain.ArtifactLoadError{
				Artifact: NameSchema,
				Err:      &domain.ShapeError{Stage: "schema", Expected: model.NumFeatures(), Actual: len(schema)},
			}
		}
		reg.schema = make([]string, len(schema))
		copy(reg.schema, schema)
	}

	return reg, nil
}

// Variant returns the schema variant the artifacts were trained for.
func (r *Registry) Variant() domain.SchemaVariant {
	return r.variant
}

// Schema returns a copy of the full-schema column list, or nil for the
// clustering-augmented variant.
func (r *Registry) Schema() []string {
	if r.schema == nil {
		return nil
	}
	out := make([]string, len(r.schema))
	copy(out, r.schema)
	return out
}

// Encoders returns the categorical encoders.
func (r *Registry) Encoders() *encoder.Registry {
	return r.encoders
}

// Reducers returns the three behavioral reducers.
func (r *Registry) Reducers() reducer.Set {
	return r.reducers
}

// Model returns the classifier ensemble.
func (r *Registry) Model() *classifier.Model {
	return r.model
}

// Names returns the artifacts required by variant.
func Names(variant domain.SchemaVariant) []string {
	names := []string{
		NameEncoders,
		NamePCAVelocity, NameKMVelocity,
		NamePCATimeGap, NameKMTimeGap,
		NamePCABehavioral, NameKMBehavioral,
		NameModel,
	}
	if variant == domain.VariantFull {
		names = append([]string{NameSchema}, names...)
	}
	return names
}

type groupSpec struct {
	group  string
	fields []string
	pca    string
	km     string

	// components the clustering-augmented layout reserves for the group
	components int
}

var groups = []groupSpec{
	{domain.GroupVelocity, domain.VelocityFields, NamePCAVelocity, NameKMVelocity, features.ClusterVelocityComponents},
	{domain.GroupTimeGap, domain.TimeGapFields, NamePCATimeGap, NameKMTimeGap, features.ClusterTimeGapComponents},
	{domain.GroupBehavioral, domain.BehavioralFields, NamePCABehavioral, NameKMBehavioral, features.ClusterBehavioralComponents},
}

// Load fetches and decodes every artifact variant needs, in parallel.
// The first failure is returned as an ArtifactLoadError naming the
// artifact.
func Load(ctx context.Context, src Source, variant domain.SchemaVariant) (*Registry, error) {
	if !variant.Valid() {
		return nil, fmt.Errorf("unknown schema variant %q", variant)
	}

	start := time.Now()

	var (
		schema      []string
		enc         *encoder.Registry
		model       *classifier.Model
		projections = make([]*reducer.Projection, len(groups))
		clusterers  = make([]*reducer.Clusterer, len(groups))
	)

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(name string, decode func([]byte) error) {
		g.Go(func() error {
			data, err := src.Fetch(gctx, name)
			if err != nil {
				return &domain.ArtifactLoadError{Artifact: name, Err: err}
			}
			if err := decode(data); err != nil {
				return &domain.ArtifactLoadError{Artifact: name, Err: err}
			}
			slog.Debug("artifact loaded", "artifact", name, "bytes", len(data))
			return nil
		})
	}

	if variant == domain.VariantFull {
		fetch(NameSchema, func(b []byte) (err error) {
			schema, err = DecodeSchema(b)
			return err
		})
	}
	fetch(NameEncoders, func(b []byte) (err error) {
		enc, err = DecodeEncoders(b)
		return err
	})
	for i, spec := range groups {
		fetch(spec.pca, func(b []byte) (err error) {
			projections[i], err = DecodeProjection(b)
			return err
		})
		fetch(spec.km, func(b []byte) (err error) {
			clusterers[i], err = DecodeClustering(b)
			return err
		})
	}
	fetch(NameModel, func(b []byte) (err error) {
		model, err = DecodeModel(b)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	built := make([]*reducer.Reducer, len(groups))
	for i, spec := range groups {
		p, c := projections[i], clusterers[i]
		if p.InputDim() != len(spec.fields) {
			return nil, &domain.ArtifactLoadError{
				Artifact: spec.pca,
				Err:      &domain.ShapeError{Stage: "reducer/" + spec.group, Expected: len(spec.fields), Actual: p.InputDim()},
			}
		}
		if variant == domain.VariantClusterAugmented && p.OutputDim() != spec.components {
			return nil, &domain.ArtifactLoadError{
				Artifact: spec.pca,
				Err:      &domain.ShapeError{Stage: "projection/" + spec.group, Expected: spec.components, Actual: p.OutputDim()},
			}
		}
		r, err := reducer.New(spec.group, len(spec.fields), p, c)
		if err != nil {
			return nil, &domain.ArtifactLoadError{Artifact: spec.km, Err: err}
		}
		built[i] = r
	}

	reg, err := NewRegistry(variant, schema, enc, reducer.Set{
		Velocity:   built[0],
		TimeGap:    built[1],
		Behavioral: built[2],
	}, model)
	if err != nil {
		return nil, err
	}

	slog.Info("artifacts loaded",
		"variant", variant,
		"count", len(Names(variant)),
		"duration", time.Since(start),
	)
	return reg, nil
}

// Loader performs Load at most once. Concurrent first callers block on
// the same load and all observe its result.
type Loader struct {
	src     Source
	variant domain.SchemaVariant

	once sync.Once
	reg  *Registry
	err  error
}

// NewLoader creates a load-once wrapper around src.
func NewLoader(src Source, variant domain.SchemaVariant) *Loader {
	return &Loader{src: src, variant: variant}
}

// Registry returns the loaded registry, loading it on first call.
// A failed load is not retried. The load outlives the first caller's
// cancellation so that a departed caller cannot poison every later one.
func (l *Loader) Registry(ctx context.Context) (*Registry, error) {
	l.once.Do(func() {
		l.reg, l.err = Load(context.WithoutCancel(ctx), l.src, l.variant)
	})
	return l.reg, l.err
}
