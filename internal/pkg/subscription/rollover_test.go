package subscription

import (
	"testing"
	"time"

	"github.com/ManuelReschke/StudyFox/app/models"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNextPeriod(t *testing.T) {
	tests := []struct {
		name      string
		periodEnd string
		now       string
		wantStart string
		wantEnd   string
	}{
		{
			name:      "just due",
			periodEnd: "2026-02-01T00:00:00Z",
			now:       "2026-02-01T06:00:00Z",
			wantStart: "2026-02-01T00:00:00Z",
			wantEnd:   "2026-03-01T00:00:00Z",
		},
		{
			name:      "missed two boundaries catches up",
			periodEnd: "2026-02-01T00:00:00Z",
			now:       "2026-04-15T00:00:00Z",
			wantStart: "2026-04-01T00:00:00Z",
			wantEnd:   "2026-05-01T00:00:00Z",
		},
	}

	for _, tt := range tests {
		start, end := NextPeriod(ts(tt.periodEnd), ts(tt.now))
		if !start.Equal(ts(tt.wantStart)) || !end.Equal(ts(tt.wantEnd)) {
			t.Fatalf("%s: NextPeriod = (%s, %s), want (%s, %s)", tt.name, start, end, tt.wantStart, tt.wantEnd)
		}
	}
}

func TestRolloverNotDue(t *testing.T) {
	sub := &models.Subscription{PeriodEndDate: ts("2026-03-01T00:00:00Z")}
	outcome, _, _ := Rollover(sub, ts("2026-02-15T00:00:00Z"))
	if outcome != RolloverNotDue {
		t.Fatalf("expected RolloverNotDue, got %d", outcome)
	}
}

func TestRolloverExpiresPendingCancellation(t *testing.T) {
	sub := &models.Subscription{
		PeriodEndDate:     ts("2026-03-01T00:00:00Z"),
		CancelAtPeriodEnd: true,
	}
	outcome, _, _ := Rollover(sub, ts("2026-03-01T00:00:00Z"))
	if outcome != RolloverExpired {
		t.Fatalf("expected RolloverExpired, got %d", outcome)
	}
}

func TestRolloverExpiresAtHardEndDate(t *testing.T) {
	end := ts("2026-03-01T00:00:00Z")
	sub := &models.Subscription{PeriodEndDate: end, EndDate: &end}
	outcome, _, _ := Rollover(sub, ts("2026-03-02T00:00:00Z"))
	if outcome != RolloverExpired {
		t.Fatalf("expected RolloverExpired for non-recurring end date, got %d", outcome)
	}
}

func TestRolloverRenewsInsideYearlyCommitment(t *testing.T) {
	commitmentEnd := ts("2027-01-01T00:00:00Z")
	sub := &models.Subscription{
		PeriodEndDate:       ts("2026-03-01T00:00:00Z"),
		BillingCycle:        models.BillingCycleYearly,
		SubscriptionEndDate: &commitmentEnd,
	}
	outcome, start, end := Rollover(sub, ts("2026-03-01T00:00:00Z"))
	if outcome != RolloverRenewed {
		t.Fatalf("expected RolloverRenewed, got %d", outcome)
	}
	if !start.Equal(ts("2026-03-01T00:00:00Z")) || !end.Equal(ts("2026-04-01T00:00:00Z")) {
		t.Fatalf("unexpected bounds (%s, %s)", start, end)
	}
}
