package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/verifai/internal/verification"
)

const (
	staticAgent      = "Rule-Based Agent"
	staticConfidence = 95.0
)

var defaultKeywords = []string{"bottle", "cup", "book", "laptop", "cell phone"}

// StaticRule marks a class verified when it contains one of a fixed set of
// keywords. Matching is case-sensitive.
type StaticRule struct {
	keywords []string
}

// NewStaticRule builds the rule backend with the default keyword set.
func NewStaticRule() *StaticRule {
	return &StaticRule{keywords: defaultKeywords}
}

// Name implements Backend.
func (s *StaticRule) Name() string { return "static" }

// Predict implements Backend.
func (s *StaticRule) Predict(_ context.Context, req verification.Request) (RawPrediction, error) {
	finding := verification.CanonicalFinding{
		Status:       verification.StatusWarning,
		Confidence:   staticConfidence,
		Summary:      fmt.Sprintf("No authenticity rule covers %q; manual review recommended.", req.ObjectClass),
		Agent:        staticAgent,
		AgentFinding: "No keyword rule matched",
		AgentStatus:  verification.AgentSuccess,
	}

	for _, kw := range s.keywords {
		if strings.Contains(req.ObjectClass, kw) {
			finding.Status = verification.StatusVerified
			finding.Summary = fmt.Sprintf("Object matches the %q authenticity rule.", kw)
			finding.AgentFinding = "Keyword rule matched: " + kw
			break
		}
	}
	return RawPrediction{Fields: finding.Fields()}, nil
}
