// Package hitl resolves the human approval checkpoints a run suspends on.
package hitl

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ActionRequest is one action awaiting a decision.
type ActionRequest struct {
	Name        string         `json:"name"`
	Args        map[string]any `json:"args"`
	Description string         `json:"description,omitempty"`
}

// ReviewConfig lists the decisions allowed for an action.
type ReviewConfig struct {
	ActionName       string   `json:"action_name"`
	AllowedDecisions []string `json:"allowed_decisions"`
}

// Request is a validated interrupt payload.
type Request struct {
	ActionRequests []ActionRequest `json:"action_requests"`
	ReviewConfigs  []ReviewConfig  `json:"review_configs,omitempty"`
}

const requestSchemaJSON = `{
  "type": "object",
  "required": ["action_requests"],
  "properties": {
    "action_requests": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "args"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "args": {"type": "object"},
          "description": {"type": "string"}
        }
      }
    },
    "review_configs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["action_name", "allowed_decisions"],
        "properties": {
          "action_name": {"type": "string"},
          "allowed_decisions": {
            "type": "array",
            "items": {"enum": ["approve", "edit", "reject"]}
          }
        }
      }
    }
  }
}`

var requestSchema = jsonschema.MustCompileString("hitl_request.json", requestSchemaJSON)

// ValidationError reports a malformed interrupt payload.
type ValidationError struct {
	InterruptID string
	Err         error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid approval request %q: %v", e.InterruptID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks an interrupt payload against the approval request schema.
func Validate(id string, raw json.RawMessage) (Request, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Request{}, &ValidationError{InterruptID: id, Err: err}
	}
	if err := requestSchema.Validate(doc); err != nil {
		return Request{}, &ValidationError{InterruptID: id, Err: err}
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, &ValidationError{InterruptID: id, Err: err}
	}
	return req, nil
}

// Pending collects validated interrupts in arrival order.
//
// Interrupt ids are expected to be unique within one resume cycle. If the
// runtime repeats an id, the later payload replaces the earlier one and the
// id keeps its first position.
type Pending struct {
	ids  []string
	reqs map[string]Request
}

// Add records a validated interrupt.
func (p *Pending) Add(id string, req Request) {
	if p.reqs == nil {
		p.reqs = make(map[string]Request)
	}
	if _, ok := p.reqs[id]; !ok {
		p.ids = append(p.ids, id)
	}
	p.reqs[id] = req
}

// Len returns the number of distinct interrupt ids.
func (p *Pending) Len() int {
	return len(p.ids)
}

// Each calls fn for every interrupt in arrival order.
func (p *Pending) Each(fn func(id string, req Request) error) error {
	for _, id := range p.ids {
		if err := fn(id, p.reqs[id]); err != nil {
			return err
		}
	}
	return nil
}
