package prediction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	errFeatureWidth = errors.New("feature vector width mismatch")
	errEmptyForest  = errors.New("random forest has no trees")
	errBadNode      = errors.New("tree node out of range")
)

// Classifier maps a scaled feature vector to a class label.
type Classifier interface {
	Predict(x []float64) (int, error)
}

// ProbabilityEstimator is implemented by classifiers that can report per-class
// probabilities. The engine uses the highest one as the confidence.
type ProbabilityEstimator interface {
	PredictProba(x []float64) ([]float64, error)
}

// Scaler standardizes raw features the same way they were standardized at
// training time.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns (x - mean) / scale. A zero scale is treated as 1.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) || len(x) != len(s.Scale) {
		return nil, fmt.Errorf("%w: scaler expects %d, got %d", errFeatureWidth, len(s.Mean), len(x))
	}

	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}

func (s *Scaler) validate() error {
	if len(s.Mean) != featureCount || len(s.Scale) != featureCount {
		return fmt.Errorf("%w: scaler must have %d means and scales", errFeatureWidth, featureCount)
	}
	return nil
}

// TreeNode is one node of a decision tree. Leaves have Left == -1 and carry
// per-class counts or fractions in Value.
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

// Tree is a flattened binary decision tree rooted at node 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

func (t Tree) leaf(x []float64) ([]float64, error) {
	idx := 0
	// A well-formed tree terminates in at most len(Nodes) steps.
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if idx < 0 || idx >= len(t.Nodes) {
			return nil, fmt.Errorf("%w: %d", errBadNode, idx)
		}
		n := t.Nodes[idx]
		if n.Left == -1 {
			return n.Value, nil
		}
		if n.Feature < 0 || n.Feature >= len(x) {
			return nil, fmt.Errorf("%w: feature %d", errBadNode, n.Feature)
		}
		if x[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
	return nil, fmt.Errorf("%w: cycle detected", errBadNode)
}

// RandomForest averages the normalized leaf distributions of its trees.
type RandomForest struct {
	Classes []int  `json:"classes"`
	Trees   []Tree `json:"trees"`
}

// PredictProba implements ProbabilityEstimator.
func (f *RandomForest) PredictProba(x []float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, errEmptyForest
	}
	if len(x) != featureCount {
		return nil, fmt.Errorf("%w: forest expects %d, got %d", errFeatureWidth, featureCount, len(x))
	}

	sum := make([]float64, len(f.Classes))
	for _, t := range f.Trees {
		value, err := t.leaf(x)
		if err != nil {
			return nil, err
		}
		if len(value) != len(f.Classes) {
			return nil, fmt.Errorf("%w: leaf has %d values for %d classes", errBadNode, len(value), len(f.Classes))
		}

		var total float64
		for _, v := range value {
			total += v
		}
		if total == 0 {
			continue
		}
		for i, v := range value {
			sum[i] += v / total
		}
	}

	n := float64(len(f.Trees))
	for i := range sum {
		sum[i] /= n
	}
	return sum, nil
}

// Predict implements Classifier.
func (f *RandomForest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	best := 0
	for i := range proba {
		if proba[i] > proba[best] {
			best = i
		}
	}
	return f.Classes[best], nil
}

// Logistic is a binary logistic-regression classifier over scaled features.
type Logistic struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// PredictProba implements ProbabilityEstimator and returns [p(0), p(1)].
func (l *Logistic) PredictProba(x []float64) ([]float64, error) {
	if len(x) != len(l.Coef) {
		return nil, fmt.Errorf("%w: logistic expects %d, got %d", errFeatureWidth, len(l.Coef), len(x))
	}
	z := l.Intercept
	for i, v := range x {
		z += l.Coef[i] * v
	}
	p1 := 1 / (1 + math.Exp(-z))
	return []float64{1 - p1, p1}, nil
}

// Predict implements Classifier.
func (l *Logistic) Predict(x []float64) (int, error) {
	proba, err := l.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if proba[1] >= 0.5 {
		return 1, nil
	}
	return 0, nil
}

// classifierArtifact is the on-disk envelope for a trained classifier.
type classifierArtifact struct {
	Type string `json:"type"`
	RandomForest
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func decodeClassifier(data []byte) (Classifier, error) {
	var a classifierArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode classifier: %w", err)
	}

	switch a.Type {
	case "random_forest":
		if len(a.Trees) == 0 {
			return nil, errEmptyForest
		}
		if len(a.Classes) == 0 {
			return nil, errors.New("random forest has no classes")
		}
		return &RandomForest{Classes: a.Classes, Trees: a.Trees}, nil
	case "logistic":
		if len(a.Coef) != featureCount {
			return nil, fmt.Errorf("%w: logistic must have %d coefficients", errFeatureWidth, featureCount)
		}
		return &Logistic{Coef: a.Coef, Intercept: a.Intercept}, nil
	default:
		return nil, fmt.Errorf("unsupported classifier type %q", a.Type)
	}
}
