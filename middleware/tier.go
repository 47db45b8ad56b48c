package middleware

import (
	"context"

	"toolhub/logger"
)

// Tier is a caller access level forming a fixed total order gating tool
// availability: free < pro < ultra.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierUltra Tier = "ultra"
)

// rank maps a tier to its position in the total order. Unknown or empty
// tiers rank as the baseline.
func (t Tier) rank() int {
	switch t {
	case TierPro:
		return 1
	case TierUltra:
		return 2
	default:
		return 0
	}
}

// Allows reports whether a caller holding tier t may use a feature gated at
// required.
func (t Tier) Allows(required Tier) bool {
	return t.rank() >= required.rank()
}

// RequireTier gates a tool behind a minimum tier. With an empty required
// tier the stage always advances immediately. A caller below the required
// rank is denied: next() is never called, the denial is logged once, and
// the caller receives a UserError naming the feature and both tiers.
func RequireTier(required Tier, log logger.Logger) Stage {
	if log == nil {
		log = logger.NewNoop()
	}
	return func(ctx context.Context, call *ToolCall, next Next) (string, error) {
		if required == "" {
			return next(ctx)
		}

		caller := TierFree
		if call.Session != nil && call.Session.Tier != "" {
			caller = call.Session.Tier
		}

		if !caller.Allows(required) {
			log.Info("tool denied by tier gate",
				logger.String("tool", call.Name),
				logger.String("caller_tier", string(caller)),
				logger.String("required_tier", string(required)))
			return "", &UserError{
				Message: "The tool " + call.Name + " requires the " + string(required) +
					" tier; your current tier is " + string(caller) + ".",
				Extras: map[string]any{
					"requiredTier": string(required),
					"callerTier":   string(caller),
				},
			}
		}
		return next(ctx)
	}
}
