// Package normalizer turns raw backend predictions into validated
// verification responses.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/verifai/internal/backend"
	"github.com/example/verifai/internal/verification"
)

var validate = validator.New()

// Normalize validates raw against the response schema for objectClass.
func Normalize(objectClass string, raw backend.RawPrediction) (*verification.Response, error) {
	if raw.Fields != nil {
		return normalizeFields(objectClass, raw.Fields, raw.String())
	}
	return ParseText(objectClass, raw.Text)
}

// ParseText parses a free-text model reply that should carry a JSON verdict,
// optionally wrapped in fence markers.
func ParseText(objectClass, text string) (*verification.Response, error) {
	cleaned := StripFences(text)
	if cleaned == "" {
		return nil, &verification.Error{Kind: verification.ErrMalformedBackendOutput, Reason: "empty reply", Raw: text}
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, &verification.Error{Kind: verification.ErrMalformedBackendOutput, Reason: "reply is not valid JSON", Raw: text, Err: err}
	}
	if dec.More() {
		return nil, &verification.Error{Kind: verification.ErrMalformedBackendOutput, Reason: "trailing data after JSON object", Raw: text}
	}
	fields, ok := payload.(map[string]any)
	if !ok {
		return nil, &verification.Error{Kind: verification.ErrMalformedBackendOutput, Reason: "reply is not a JSON object", Raw: text}
	}
	return normalizeFields(objectClass, fields, text)
}

func normalizeFields(objectClass string, fields map[string]any, raw string) (*verification.Response, error) {
	fail := func(kind error, format string, args ...any) error {
		return &verification.Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Raw: raw}
	}

	hasDetails := fields["details"] != nil
	_, hasAgent := fields["agent"]
	for _, key := range []string{"status", "confidence", "summary"} {
		if v, ok := fields[key]; !ok || v == nil {
			return nil, fail(verification.ErrIncompleteBackendOutput, "missing %q", key)
		}
	}
	if !hasDetails && !hasAgent {
		return nil, fail(verification.ErrIncompleteBackendOutput, `missing "details"`)
	}

	confidence, err := coerceConfidence(fields["confidence"])
	if err != nil {
		return nil, fail(verification.ErrInvalidConfidence, "%v", err)
	}

	statusText, ok := fields["status"].(string)
	status := verification.Status(statusText)
	if !ok || !status.Valid() {
		return nil, fail(verification.ErrInvalidStatus, "unrecognized status %v", fields["status"])
	}

	summary, ok := fields["summary"].(string)
	if !ok {
		return nil, fail(verification.ErrMalformedBackendOutput, "summary is %T, not a string", fields["summary"])
	}

	var details []verification.Detail
	if hasDetails {
		details, err = parseDetails(fields["details"])
		if err != nil {
			return nil, &verification.Error{Kind: kindOf(err), Reason: err.Error(), Raw: raw}
		}
	} else {
		detail, err := synthesizeDetail(fields, summary)
		if err != nil {
			return nil, fail(verification.ErrIncompleteBackendOutput, "%v", err)
		}
		details = []verification.Detail{detail}
	}

	title, _ := fields["title"].(string)
	if strings.TrimSpace(title) == "" {
		title = verification.Title(objectClass)
	}

	resp := &verification.Response{
		Status:     status,
		Title:      title,
		Confidence: confidence,
		Summary:    summary,
		Details:    details,
	}
	if err := validate.Struct(resp); err != nil {
		return nil, fail(verification.ErrIncompleteBackendOutput, "response failed validation: %v", err)
	}
	return resp, nil
}

func coerceConfidence(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("confidence %q is not numeric", n.String())
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("confidence %q is not numeric", n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("confidence has type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("confidence %v is not finite", f)
	}
	if f < verification.MinConfidence || f > verification.MaxConfidence {
		return 0, fmt.Errorf("confidence %v outside [%v, %v]", f, verification.MinConfidence, verification.MaxConfidence)
	}
	return f, nil
}

type detailsError struct {
	kind   error
	reason string
}

func (e *detailsError) Error() string { return e.reason }

func kindOf(err error) error {
	var de *detailsError
	if errors.As(err, &de) {
		return de.kind
	}
	return verification.ErrMalformedBackendOutput
}

func parseDetails(v any) ([]verification.Detail, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, &detailsError{kind: verification.ErrMalformedBackendOutput, reason: fmt.Sprintf("details is %T, not a list", v)}
	}
	if len(items) == 0 {
		return nil, &detailsError{kind: verification.ErrIncompleteBackendOutput, reason: "details is empty"}
	}

	details := make([]verification.Detail, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &detailsError{kind: verification.ErrMalformedBackendOutput, reason: fmt.Sprintf("details[%d] is %T, not an object", i, item)}
		}
		var d verification.Detail
		for key, dst := range map[string]*string{"agent": &d.Agent, "finding": &d.Finding, "status": &d.Status} {
			s, ok := obj[key].(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, &detailsError{kind: verification.ErrIncompleteBackendOutput, reason: fmt.Sprintf("details[%d] missing %q", i, key)}
			}
			*dst = s
		}
		details = append(details, d)
	}
	return details, nil
}

// synthesizeDetail builds the single details entry for backends that report
// a flat finding instead of a details list.
func synthesizeDetail(fields map[string]any, summary string) (verification.Detail, error) {
	agent, _ := fields["agent"].(string)
	if strings.TrimSpace(agent) == "" {
		return verification.Detail{}, errors.New("agent is empty")
	}
	finding, _ := fields["agent_finding"].(string)
	if finding == "" {
		finding = summary
	}
	if finding == "" {
		return verification.Detail{}, fmt.Errorf("no finding to report for agent %q", agent)
	}
	status, _ := fields["agent_status"].(string)
	if status == "" {
		status = string(verification.AgentSuccess)
	}
	return verification.Detail{Agent: agent, Finding: finding, Status: status}, nil
}
