package ai

import (
	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
)

// Route is the router's verdict: which backend carries the turn and at what
// effective tier the prompt is assembled.
type Route struct {
	BackendID     string
	EffectiveTier models.Tier
}

// RouteInputs are the pure inputs of the routing decision.
type RouteInputs struct {
	Tier         models.Tier
	Subscription string
	Intensity    models.Intensity
	Modifier     models.Modifier
	// TierCapped is set by the arbiter when the effective tier must not
	// exceed 2 (soft cap, deflection, distress).
	TierCapped bool
}

// SelectRoute picks the backend and effective tier. Precedence, highest wins:
// detected NSFW intensity, post-climax recovery modifiers, active
// subscription, then the plain tier mapping.
func SelectRoute(in RouteInputs) Route {
	route := selectBase(in)

	if in.TierCapped && route.EffectiveTier > models.Tier2 {
		route.EffectiveTier = models.Tier2
	}
	return route
}

func selectBase(in RouteInputs) Route {
	if in.Intensity == models.IntensityNSFW {
		return Route{BackendID: BackendPermissive, EffectiveTier: models.Tier3}
	}

	if in.Modifier.IsRecovery() {
		// Recovery turns need the permissive backend to carry intimate context.
		return Route{BackendID: BackendPermissive, EffectiveTier: maxTier(in.Tier, models.Tier2)}
	}

	if in.Subscription == models.SubscriptionActive {
		return Route{BackendID: BackendPermissive, EffectiveTier: maxTier(in.Tier, models.Tier2)}
	}

	if in.Tier <= models.Tier1 {
		return Route{BackendID: BackendEconomical, EffectiveTier: models.Tier1}
	}
	return Route{BackendID: BackendPermissive, EffectiveTier: in.Tier}
}

func maxTier(a, b models.Tier) models.Tier {
	if a > b {
		return a
	}
	return b
}
