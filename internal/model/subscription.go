package model

import (
	"fmt"
	"time"
)

// Plan is a subscription tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// ParsePlan rejects unknown plans.
func ParsePlan(s string) (Plan, error) {
	switch p := Plan(s); p {
	case PlanFree, PlanPro, PlanEnterprise:
		return p, nil
	}
	return "", fmt.Errorf("unknown plan %q", s)
}

// Subscription mirrors the `subscriptions` table.  It is consulted only as
// authorization input: premium model access and the history window size.
type Subscription struct {
	ID        uint64
	UserID    uint64
	Plan      Plan
	Active    bool
	StartsAt  time.Time
	ExpiresAt *time.Time
	AutoRenew bool
}

// Premium reports whether the plan unlocks premium models.
func (p Plan) Premium() bool { return p == PlanPro || p == PlanEnterprise }

// ContextLength is the number of history messages forwarded to the model.
// Zero means the server default.
func (p Plan) ContextLength() int {
	switch p {
	case PlanPro:
		return 40
	case PlanEnterprise:
		return 100
	}
	return 0
}
