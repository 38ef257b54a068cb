// Package pipeline sequences cleaning, reduction, assembly and scoring
// into a single prediction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/opensource-finance/fraudlens/internal/artifact"
	"github.com/opensource-finance/fraudlens/internal/classifier"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/encoder"
	"github.com/opensource-finance/fraudlens/internal/features"
	"github.com/opensource-finance/fraudlens/internal/metrics"
	"github.com/opensource-finance/fraudlens/internal/reducer"
	"github.com/opensource-finance/fraudlens/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
)

// Prediction is the outcome of one successful pipeline run.
type Prediction struct {
	Score    domain.FraudScore
	Variant  domain.SchemaVariant
	Width    int
	Stages   []domain.Stage
	Duration time.Duration
}

// Orchestrator runs the inference state machine. It holds only
// read-only artifacts and is safe for concurrent use.
type Orchestrator struct {
	variant    domain.SchemaVariant
	encoders   *encoder.Registry
	reducers   reducer.Set
	assembler  features.Assembler
	classifier *classifier.Classifier
	logger     *slog.Logger
}

// New builds an orchestrator over a loaded registry.
func New(reg *artifact.Registry, threshold float64, logger *slog.Logger) (*Orchestrator, error) {
	if reg == nil {
		return nil, fmt.Errorf("pipeline: artifact registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	assembler, err := features.NewAssembler(reg.Variant(), reg.Schema())
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	clf, err := classifier.New(reg.Model(), threshold)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	if len(assembler.Columns()) != clf.NumFeatures() {
		return nil, fmt.Errorf("pipeline: %w", &domain.ShapeError{
			Stage:    "pipeline",
			Expected: clf.NumFeatures(),
			Actual:   len(assembler.Columns()),
		})
	}

	return &Orchestrator{
		variant:    reg.Variant(),
		encoders:   reg.Encoders(),
		reducers:   reg.Reducers(),
		assembler:  assembler,
		classifier: clf,
		logger:     logger,
	}, nil
}

// Variant returns the schema variant this orchestrator serves.
func (o *Orchestrator) Variant() domain.SchemaVariant {
	return o.variant
}

// Threshold returns the decision threshold.
func (o *Orchestrator) Threshold() float64 {
	return o.classifier.Threshold()
}

// Columns returns the engineered vector's column names.
func (o *Orchestrator) Columns() []string {
	return o.assembler.Columns()
}

// run tracks one pass through the state machine.
type run struct {
	stages []domain.Stage
}

// step enters stage and executes fn inside its span. A failure moves the
// run to Failed and is wrapped with the stage name.
func (r *run) step(ctx context.Context, stage domain.Stage, fn func() error) error {
	// A caller that went away is not a stage failure.
	if err := ctx.Err(); err != nil {
		return err
	}
	r.stages = append(r.stages, stage)

	_, span := telemetry.StartSpan(ctx, "pipeline."+string(stage), telemetry.Stage(stage))
	defer span.End()

	if err := fn(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.stages = append(r.stages, domain.StageFailed)
		return &domain.StageError{Stage: stage, Err: err}
	}
	return nil
}

// Predict runs Collecting -> Cleaning -> Reducing -> Assembling -> Scoring
// -> Done. Any failure ends the run in Failed with a StageError; no
// partial score is ever returned. A cancelled ctx returns ctx.Err() as is.
func (o *Orchestrator) Predict(ctx context.Context, raw domain.RawAttributes) (*Prediction, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "pipeline.predict", telemetry.Variant(o.variant))
	defer span.End()

	r := &run{stages: []domain.Stage{domain.StageCollecting}}

	var (
		rec   domain.CleanedRecord
		outs  domain.ReducerOutputs
		vec   domain.EngineeredVector
		score domain.FraudScore
	)

	err := r.step(ctx, domain.StageCleaning, func() error {
		if raw == nil {
			raw = domain.RawAttributes{}
		}
		rec = features.Clean(raw, o.encoders)
		o.recordUnseen(&rec)
		return nil
	})
	if err == nil {
		err = r.step(ctx, domain.StageReducing, func() (err error) {
			outs, err = Reduce(o.reducers, &rec)
			return err
		})
	}
	if err == nil {
		err = r.step(ctx, domain.StageAssembling, func() (err error) {
			vec, err = o.assembler.Assemble(&rec, outs)
			return err
		})
	}
	if err == nil {
		err = r.step(ctx, domain.StageScoring, func() (err error) {
			score, err = o.classifier.Score(vec)
			return err
		})
	}

	elapsed := time.Since(start)
	metrics.PredictionDuration.WithLabelValues(string(o.variant)).Observe(elapsed.Seconds())

	if err != nil {
		var stageErr *domain.StageError
		if !errors.As(err, &stageErr) {
			o.logger.Debug("prediction abandoned", "variant", o.variant, "error", err)
			return nil, err
		}
		failed := stageErr.Stage
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.PredictionFailuresTotal.WithLabelValues(string(failed)).Inc()
		o.logger.Warn("prediction unavailable",
			"stage", failed,
			"variant", o.variant,
			"error", err,
		)
		return nil, err
	}

	r.stages = append(r.stages, domain.StageDone)
	metrics.PredictionsTotal.WithLabelValues(string(o.variant), strconv.Itoa(score.Label)).Inc()
	o.logger.Debug("prediction completed",
		"variant", o.variant,
		"probability", score.Probability,
		"label", score.Label,
		"duration", elapsed,
	)

	return &Prediction{
		Score:    score,
		Variant:  o.variant,
		Width:    vec.Len(),
		Stages:   r.stages,
		Duration: elapsed,
	}, nil
}

// Reduce runs the three group reducers on rec and derives the combined
// cluster index.
func Reduce(set reducer.Set, rec *domain.CleanedRecord) (domain.ReducerOutputs, error) {
	var outs domain.ReducerOutputs
	var err error

	if outs.Velocity, err = set.Velocity.Reduce(rec.Velocity.Vector()); err != nil {
		return outs, err
	}
	if outs.TimeGap, err = set.TimeGap.Reduce(rec.TimeGap.Vector()); err != nil {
		return outs, err
	}
	if outs.Behavioral, err = set.Behavioral.Reduce(rec.Behavioral.Vector()); err != nil {
		return outs, err
	}

	outs.CombinedCluster = CombineClusters(outs.Velocity.Cluster, outs.TimeGap.Cluster, outs.Behavioral.Cluster)
	return outs, nil
}

// CombineClusters is the combined cluster index: the sum of the three
// group labels.
func CombineClusters(velocity, timeGap, behavioral int) int {
	return velocity + timeGap + behavioral
}

func (o *Orchestrator) recordUnseen(rec *domain.CleanedRecord) {
	fields := []struct {
		key  string
		code int
	}{
		{domain.KeyProductCD, rec.Encoded.ProductCD},
		{domain.KeyPEmailDomain, rec.Encoded.PEmailDomain},
		{domain.KeyREmailDomain, rec.Encoded.REmailDomain},
		{domain.KeyDeviceInfo, rec.Encoded.DeviceInfo},
	}
	for _, f := range fields {
		if f.code == encoder.Sentinel && !rec.IsDefaulted(f.key) {
			metrics.UnseenCategoriesTotal.WithLabelValues(f.key).Inc()
		}
	}
}
