package classifier

import (
	"errors"
	"fmt"
	"math"
)

const (
	LabelAuthentic   = "authentic"
	LabelCounterfeit = "counterfeit"
)

// Model is a fitted binary logistic classifier. Positive scores favour
// Labels[1].
type Model struct {
	Labels  [2]string `json:"labels"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// Prediction is a classifier decision with the probability of that label.
type Prediction struct {
	Label       string
	Probability float64
}

// Predict scores a feature vector produced by the paired vectorizer.
func (m *Model) Predict(features []float64) (Prediction, error) {
	if len(features) != len(m.Weights) {
		return Prediction{}, fmt.Errorf("classifier: expected %d features, got %d", len(m.Weights), len(features))
	}
	z := m.Bias
	for i, w := range m.Weights {
		z += w * features[i]
	}
	p := 1 / (1 + math.Exp(-z))
	if p >= 0.5 {
		return Prediction{Label: m.Labels[1], Probability: p}, nil
	}
	return Prediction{Label: m.Labels[0], Probability: 1 - p}, nil
}

// PlaceholderModel returns an untrained model that always predicts
// authentic with the given probability.
func PlaceholderModel(features int, probability float64) *Model {
	return &Model{
		Labels:  [2]string{LabelCounterfeit, LabelAuthentic},
		Weights: make([]float64, features),
		Bias:    math.Log(probability / (1 - probability)),
	}
}

func (m *Model) validate(features int) error {
	if m == nil {
		return errors.New("classifier: model is nil")
	}
	if m.Labels[0] == "" || m.Labels[1] == "" {
		return errors.New("classifier: model labels are empty")
	}
	if len(m.Weights) != features {
		return fmt.Errorf("classifier: model expects %d features, vectorizer yields %d", len(m.Weights), features)
	}
	return nil
}
