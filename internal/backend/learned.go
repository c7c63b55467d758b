package backend

import (
	"context"
	"fmt"
	"math"

	"github.com/example/verifai/internal/backend/classifier"
	"github.com/example/verifai/internal/verification"
)

const learnedAgent = "Self-Hosted Model v3"

// LearnedClassifier scores the object class text with a fitted vectorizer
// and classifier. It never looks at the image. The fitted pair is shared
// read-only across requests.
type LearnedClassifier struct {
	vectorizer *classifier.Vectorizer
	model      *classifier.Model
}

// NewLearnedClassifier wraps a loaded artifact pair.
func NewLearnedClassifier(artifacts *classifier.Artifacts) *LearnedClassifier {
	return &LearnedClassifier{vectorizer: artifacts.Vectorizer, model: artifacts.Model}
}

// Name implements Backend.
func (l *LearnedClassifier) Name() string { return "classifier" }

// Predict implements Backend.
func (l *LearnedClassifier) Predict(_ context.Context, req verification.Request) (RawPrediction, error) {
	features := l.vectorizer.Transform(req.ObjectClass)
	pred, err := l.model.Predict(features)
	if err != nil {
		return RawPrediction{}, verification.WrapError(verification.ErrBackendUnavailable, "classifier artifacts are inconsistent", err)
	}

	status := verification.StatusWarning
	if pred.Label == classifier.LabelAuthentic {
		status = verification.StatusVerified
	}
	finding := verification.CanonicalFinding{
		Status:       status,
		Confidence:   math.Round(pred.Probability*1000) / 10,
		Summary:      fmt.Sprintf("Self-hosted AI model predicted this item is %s.", pred.Label),
		Agent:        learnedAgent,
		AgentFinding: "Prediction output: " + pred.Label,
		AgentStatus:  verification.AgentSuccess,
	}
	return RawPrediction{Fields: finding.Fields()}, nil
}
