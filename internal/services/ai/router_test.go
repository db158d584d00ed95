package ai

import (
	"testing"

	"github.com/alexgrosjean991-web/luna-bot-sub000/internal/models"
)

func TestSelectRoute(t *testing.T) {
	tests := []struct {
		name string
		in   RouteInputs
		want Route
	}{
		{
			name: "calm tier1 goes economical",
			in:   RouteInputs{Tier: models.Tier1, Intensity: models.IntensitySFW},
			want: Route{BackendID: BackendEconomical, EffectiveTier: models.Tier1},
		},
		{
			name: "tier2 goes permissive",
			in:   RouteInputs{Tier: models.Tier2, Intensity: models.IntensityFlirt},
			want: Route{BackendID: BackendPermissive, EffectiveTier: models.Tier2},
		},
		{
			name: "nsfw forces permissive at tier3",
			in:   RouteInputs{Tier: models.Tier1, Intensity: models.IntensityNSFW},
			want: Route{BackendID: BackendPermissive, EffectiveTier: models.Tier3},
		},
		{
			name: "recovery forces permissive even at low tier",
			in:   RouteInputs{Tier: models.Tier1, Intensity: models.IntensitySFW, Modifier: models.ModifierAftercare},
			want: Route{BackendID: BackendPermissive, EffectiveTier: models.Tier2},
		},
		{
			name: "recovery keeps a higher tier",
			in:   RouteInputs{Tier: models.Tier3, Intensity: models.IntensitySFW, Modifier: models.ModifierPostIntimate},
			want: Route{BackendID: BackendPermissive, EffectiveTier: models.Tier3},
		},
		{
			name: "subscriber never downgraded to economical",
			in:   RouteInputs{Tier: models.Tier1, Intensity: models.IntensitySFW, Subscription: models.SubscriptionActive},
			want: Route{BackendID: BackendPermissive, EffectiveTier: models.Tier2},
		},
		{
			name: "tier cap holds nsfw to tier2",
			in:   RouteInputs{Tier: models.Tier1, Intensity: models.IntensityNSFW, TierCapped: true},
			want: Route{BackendID: BackendPermissive, EffectiveTier: models.Tier2},
		},
		{
			name: "tier cap leaves tier1 alone",
			in:   RouteInputs{Tier: models.Tier1, Intensity: models.IntensitySFW, TierCapped: true},
			want: Route{BackendID: BackendEconomical, EffectiveTier: models.Tier1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectRoute(tt.in)
			if got != tt.want {
				t.Errorf("SelectRoute() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
