package backend

import (
	"context"

	"github.com/example/verifai/internal/verification"
)

var defaultEntry = verification.CanonicalFinding{
	Status:       verification.StatusWarning,
	Confidence:   75.0,
	Summary:      "No specialised checks exist for this object class; only general heuristics were applied.",
	Agent:        "General Object Agent",
	AgentFinding: "Object class not in the verification catalogue",
	AgentStatus:  verification.AgentSuccess,
}

var catalogue = map[string]verification.CanonicalFinding{
	"bottle": {
		Status:       verification.StatusVerified,
		Confidence:   99.2,
		Summary:      "Packaging, seal and label layout are consistent with the genuine product.",
		Agent:        "Consumable Safety Agent",
		AgentFinding: "Seal intact, label typography matches reference",
		AgentStatus:  verification.AgentSuccess,
	},
	"cell phone": {
		Status:       verification.StatusVerified,
		Confidence:   97.5,
		Summary:      "Device markings and port layout match the manufacturer reference.",
		Agent:        "Electronics Authenticity Agent",
		AgentFinding: "Chassis markings match reference",
		AgentStatus:  verification.AgentSuccess,
	},
	"laptop": {
		Status:       verification.StatusVerified,
		Confidence:   96.8,
		Summary:      "Logo placement and keyboard layout match the manufacturer reference.",
		Agent:        "Electronics Authenticity Agent",
		AgentFinding: "Logo and keyboard layout match reference",
		AgentStatus:  verification.AgentSuccess,
	},
	"book": {
		Status:       verification.StatusVerified,
		Confidence:   91.4,
		Summary:      "Print quality and binding are consistent with a licensed edition.",
		Agent:        "Print Media Agent",
		AgentFinding: "Binding and print density within expected range",
		AgentStatus:  verification.AgentSuccess,
	},
	"handbag": {
		Status:       verification.StatusDanger,
		Confidence:   88.1,
		Summary:      "Stitching pattern and hardware finish deviate from the brand reference.",
		Agent:        "Luxury Goods Agent",
		AgentFinding: "Irregular stitching density detected",
		AgentStatus:  verification.AgentFail,
	},
	"sneaker": {
		Status:       verification.StatusWarning,
		Confidence:   68.3,
		Summary:      "Sole pattern is plausible but the tongue label could not be matched.",
		Agent:        "Footwear Agent",
		AgentFinding: "Tongue label unmatched",
		AgentStatus:  verification.AgentFail,
	},
}

// TableLookup resolves verdicts from a fixed catalogue keyed by the exact
// object class, falling back to a general entry.
type TableLookup struct {
	entries  map[string]verification.CanonicalFinding
	fallback verification.CanonicalFinding
}

// NewTableLookup builds the lookup backend over the built-in catalogue.
func NewTableLookup() *TableLookup {
	return &TableLookup{entries: catalogue, fallback: defaultEntry}
}

// Name implements Backend.
func (t *TableLookup) Name() string { return "table" }

// Predict implements Backend.
func (t *TableLookup) Predict(_ context.Context, req verification.Request) (RawPrediction, error) {
	entry, ok := t.entries[req.ObjectClass]
	if !ok {
		entry = t.fallback
	}
	return RawPrediction{Fields: entry.Fields()}, nil
}
