package rules

import "context"

const (
	ApproveRuleName = "approve-rule"
	RejectRuleName  = "reject-rule"
)

// StaticRule returns the same decision for every request.
type StaticRule struct {
	name     string
	id       string
	decision bool
}

// NewApproveRule builds a rule that approves everything. It takes no arguments.
func NewApproveRule(_ context.Context, env Env) (Rule, error) {
	return &StaticRule{name: ApproveRuleName, id: env.RuleID, decision: true}, nil
}

// NewRejectRule builds a rule that rejects everything. It takes no arguments.
func NewRejectRule(_ context.Context, env Env) (Rule, error) {
	return &StaticRule{name: RejectRuleName, id: env.RuleID, decision: false}, nil
}

func (r *StaticRule) Name() string { return r.name }

func (r *StaticRule) ID() string { return r.id }

func (r *StaticRule) ApproveRequest(context.Context, Request) (bool, error) {
	return r.decision, nil
}
