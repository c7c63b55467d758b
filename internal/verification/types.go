package verification

// Status is the overall verdict of a verification.
type Status string

const (
	StatusVerified Status = "verified"
	StatusWarning  Status = "warning"
	StatusDanger   Status = "danger"
)

// Valid reports whether s is one of the recognized verdicts.
func (s Status) Valid() bool {
	switch s {
	case StatusVerified, StatusWarning, StatusDanger:
		return true
	}
	return false
}

// AgentStatus is the outcome reported by a single analysis agent.
type AgentStatus string

const (
	AgentSuccess AgentStatus = "success"
	AgentFail    AgentStatus = "fail"
)

const (
	MinConfidence = 0.0
	MaxConfidence = 100.0
)

// Request is the inbound verification call.
type Request struct {
	Image       string `json:"image" binding:"required"`
	ObjectClass string `json:"object_class" binding:"required"`
}

// CanonicalFinding is the flat verdict shape produced by the local backends.
type CanonicalFinding struct {
	Status       Status      `json:"status"`
	Confidence   float64     `json:"confidence"`
	Summary      string      `json:"summary"`
	Agent        string      `json:"agent"`
	AgentFinding string      `json:"agent_finding"`
	AgentStatus  AgentStatus `json:"agent_status"`
}

// Fields renders the finding as an untyped payload, the form backends hand
// to the normalizer.
func (f CanonicalFinding) Fields() map[string]any {
	return map[string]any{
		"status":        string(f.Status),
		"confidence":    f.Confidence,
		"summary":       f.Summary,
		"agent":         f.Agent,
		"agent_finding": f.AgentFinding,
		"agent_status":  string(f.AgentStatus),
	}
}

// Detail is one agent's contribution to a verdict.
type Detail struct {
	Agent   string `json:"agent" validate:"required"`
	Finding string `json:"finding" validate:"required"`
	Status  string `json:"status" validate:"required"`
}

// Response is the validated verdict returned to callers.
type Response struct {
	Status     Status   `json:"status" validate:"oneof=verified warning danger"`
	Title      string   `json:"title" validate:"required"`
	Confidence float64  `json:"confidence" validate:"gte=0,lte=100"`
	Summary    string   `json:"summary"`
	Details    []Detail `json:"details" validate:"min=1,dive"`
}
