// Package policy evaluates the server-side chat admission policy. The
// client runs its own keyword filter to save a round trip; this engine is
// the authoritative copy the backend consults before calling the AI
// upstream.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.chat_policy.decision"),
		rego.Module("chat_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input is the evaluation input for one outbound message.
type Input struct {
	Message         string   `json:"message"`
	Department      string   `json:"department"`
	BlockedKeywords []string `json:"blocked_keywords"`
}

// Evaluate returns the policy decision for the given input.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default, so this should not happen.
		return DecisionAllow, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionAllow, nil
}

// Allow reports whether the message may be forwarded to the AI upstream.
func (e *Engine) Allow(ctx context.Context, message, department string, keywords []string) (bool, error) {
	decision, err := e.Evaluate(ctx, Input{
		Message:         message,
		Department:      department,
		BlockedKeywords: keywords,
	})
	if err != nil {
		return false, err
	}
	return decision != DecisionBlock, nil
}

// DefaultPolicy blocks any message containing a configured keyword,
// matching the client-side filter: case-insensitive substring, no word
// boundaries.
const DefaultPolicy = `
package chat_policy

import rego.v1

default decision := "allow"

decision := "block" if {
	some kw in input.blocked_keywords
	contains(lower(input.message), lower(kw))
}
`
