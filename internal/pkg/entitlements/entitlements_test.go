package entitlements

import (
	"testing"

	"github.com/ManuelReschke/StudyFox/app/models"
)

func i64(v int64) *int64 { return &v }
func i(v int) *int       { return &v }

func TestEffectiveTokenLimit(t *testing.T) {
	tests := []struct {
		name     string
		base     *int64
		override *int64
		want     *int64
	}{
		{name: "base only", base: i64(50000), override: nil, want: i64(50000)},
		{name: "override wins", base: i64(50000), override: i64(60000), want: i64(60000)},
		{name: "override below base still wins", base: i64(50000), override: i64(40000), want: i64(40000)},
		{name: "unlimited tier", base: nil, override: nil, want: nil},
		{name: "override on unlimited tier", base: nil, override: i64(60000), want: i64(60000)},
	}

	for _, tt := range tests {
		tier := &models.Tier{TokenLimit: tt.base}
		sub := &models.Subscription{TokenLimitOverride: tt.override}
		got := EffectiveTokenLimit(tier, sub)
		if (got == nil) != (tt.want == nil) {
			t.Fatalf("%s: EffectiveTokenLimit = %v, want %v", tt.name, got, tt.want)
		}
		if got != nil && *got != *tt.want {
			t.Fatalf("%s: EffectiveTokenLimit = %d, want %d", tt.name, *got, *tt.want)
		}
	}
}

func TestCarryover(t *testing.T) {
	tests := []struct {
		name     string
		base     *int64
		override *int64
		want     int64
	}{
		{name: "no override", base: i64(50000), override: nil, want: 0},
		{name: "positive carryover", base: i64(50000), override: i64(60000), want: 10000},
		{name: "override below base clamps to zero", base: i64(50000), override: i64(40000), want: 0},
		{name: "unlimited base", base: nil, override: i64(60000), want: 0},
	}

	for _, tt := range tests {
		tier := &models.Tier{TokenLimit: tt.base}
		sub := &models.Subscription{TokenLimitOverride: tt.override}
		if got := Carryover(tier, sub); got != tt.want {
			t.Fatalf("%s: Carryover = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestResolveRemaining(t *testing.T) {
	tier := &models.Tier{
		Name:        models.TierPremium,
		DisplayName: "Premium",
		TokenLimit:  i64(50000),
		PapersLimit: i(50),
	}
	sub := &models.Subscription{
		TokensUsedCurrentPeriod:     48000,
		TokenLimitOverride:          i64(60000),
		PapersAccessedCurrentPeriod: 50,
	}

	res := Resolve(tier, sub)
	if res.Carryover != 10000 {
		t.Fatalf("Carryover = %d, want 10000", res.Carryover)
	}
	if res.TokenLimit == nil || *res.TokenLimit != 60000 {
		t.Fatalf("TokenLimit = %v, want 60000", res.TokenLimit)
	}
	if res.TokensRemaining == nil || *res.TokensRemaining != 12000 {
		t.Fatalf("TokensRemaining = %v, want 12000", res.TokensRemaining)
	}
	if res.PapersRemaining == nil || *res.PapersRemaining != 0 {
		t.Fatalf("PapersRemaining = %v, want 0", res.PapersRemaining)
	}
}

func TestResolveUnlimited(t *testing.T) {
	tier := &models.Tier{Name: models.TierPremiumMax, DisplayName: "Premium Max"}
	sub := &models.Subscription{TokensUsedCurrentPeriod: 1 << 40}

	res := Resolve(tier, sub)
	if res.TokenLimit != nil || res.TokensRemaining != nil {
		t.Fatalf("expected unlimited tokens, got limit=%v remaining=%v", res.TokenLimit, res.TokensRemaining)
	}
	if res.PapersLimit != nil {
		t.Fatalf("expected unlimited papers, got %v", res.PapersLimit)
	}
}

func TestTokensAvailable(t *testing.T) {
	tier := &models.Tier{TokenLimit: i64(100)}
	sub := &models.Subscription{TokensUsedCurrentPeriod: 90}

	if !TokensAvailable(tier, sub, 10) {
		t.Fatalf("expected charge reaching the limit exactly to fit")
	}
	if TokensAvailable(tier, sub, 11) {
		t.Fatalf("expected charge past the limit to be rejected")
	}
	if !TokensAvailable(&models.Tier{}, sub, 1<<30) {
		t.Fatalf("expected unlimited tier to always fit")
	}
}
