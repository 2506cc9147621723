// Package prediction classifies irrigation need from sensor features. A
// trained classifier is used when one is loaded; otherwise, or whenever the
// model path fails, a fixed rule table answers instead.
package prediction

import (
	"fmt"
	"log/slog"
)

// Engine owns an optional classifier and scaler. It is safe for concurrent
// use; nothing in it is mutated after construction.
type Engine struct {
	classifier Classifier
	scaler     *Scaler
	logger     *slog.Logger
}

// NewEngine creates an Engine. Passing a nil classifier or scaler disables
// model-backed prediction.
func NewEngine(classifier Classifier, scaler *Scaler, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		classifier: classifier,
		scaler:     scaler,
		logger:     logger,
	}
}

// ModelLoaded reports whether predictions go through the trained classifier.
func (e *Engine) ModelLoaded() bool {
	return e.classifier != nil && e.scaler != nil
}

// ModelType names the active classifier, or "rules" when none is loaded.
func (e *Engine) ModelType() string {
	if !e.ModelLoaded() {
		return "rules"
	}
	switch e.classifier.(type) {
	case *RandomForest:
		return "random_forest"
	case *Logistic:
		return "logistic"
	default:
		return fmt.Sprintf("%T", e.classifier)
	}
}

// Predict always returns a usable Decision.
func (e *Engine) Predict(f FeatureVector) Decision {
	if !e.ModelLoaded() {
		return RuleBased(f)
	}

	d, err := e.predictWithModel(f)
	if err != nil {
		e.logger.Warn("model prediction failed, falling back to rules", "error", err)
		return RuleBased(f)
	}
	return d
}

func (e *Engine) predictWithModel(f FeatureVector) (d Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()

	scaled, err := e.scaler.Transform(f.Values())
	if err != nil {
		return Decision{}, fmt.Errorf("scale features: %w", err)
	}

	class, err := e.classifier.Predict(scaled)
	if err != nil {
		return Decision{}, fmt.Errorf("classify: %w", err)
	}

	return Decision{
		PredictedClass: class,
		Confidence:     e.confidence(scaled),
		Source:         SourceModel,
	}, nil
}

func (e *Engine) confidence(scaled []float64) float64 {
	pe, ok := e.classifier.(ProbabilityEstimator)
	if !ok {
		return defaultConfidence
	}

	proba, err := pe.PredictProba(scaled)
	if err != nil || len(proba) == 0 {
		return defaultConfidence
	}

	best := proba[0]
	for _, p := range proba[1:] {
		if p > best {
			best = p
		}
	}
	return best
}
