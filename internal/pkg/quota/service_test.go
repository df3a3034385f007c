package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/StudyFox/app/models"
	"github.com/ManuelReschke/StudyFox/internal/pkg/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeRepo implements Repository with the same atomicity guarantees the GORM
// implementation gets from guarded UPDATEs: a mutex serializes the
// check-and-increment, so overlapping charges cannot jointly overflow.
type fakeRepo struct {
	mu         sync.Mutex
	sub        *models.Subscription
	accesses   map[string]struct{}
	planCount  int64
	nextPlanID uint
}

func newFakeRepo(tier models.Tier) *fakeRepo {
	uid := uint(1)
	return &fakeRepo{
		sub: &models.Subscription{
			ID:              1,
			UserID:          1,
			ActiveUserID:    &uid,
			TierID:          tier.ID,
			Tier:            tier,
			Status:          models.SubscriptionStatusActive,
			PeriodStartDate: time.Now(),
			PeriodEndDate:   models.PeriodEnd(time.Now()),
		},
		accesses:   map[string]struct{}{},
		nextPlanID: 1,
	}
}

func (r *fakeRepo) GetActiveByUser(userID uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub == nil || r.sub.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *r.sub
	return &cp, nil
}

func (r *fakeRepo) IncrementTokens(subID uint, amount int64, limit *int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub == nil || r.sub.ID != subID {
		return false, nil
	}
	if limit != nil && r.sub.TokensUsedCurrentPeriod+amount > *limit {
		return false, nil
	}
	r.sub.TokensUsedCurrentPeriod += amount
	return true, nil
}

func (r *fakeRepo) RecordPaperAccess(sub *models.Subscription, paperID string, limit *int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accesses[paperID]; ok {
		return false, nil
	}
	if limit != nil && r.sub.PapersAccessedCurrentPeriod+1 > *limit {
		return false, ErrQuotaExceeded
	}
	r.accesses[paperID] = struct{}{}
	r.sub.PapersAccessedCurrentPeriod++
	return true, nil
}

func (r *fakeRepo) CountStudyPlans(userID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.planCount, nil
}

func (r *fakeRepo) CreateStudyPlan(plan *models.StudyPlanSchedule, limit *int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit != nil && r.planCount >= int64(*limit) {
		return false, nil
	}
	plan.ID = r.nextPlanID
	r.nextPlanID++
	r.planCount++
	return true, nil
}

func limitedTier(tokens int64, papers, plans int) models.Tier {
	return models.Tier{
		ID:                 2,
		Name:               models.TierPremium,
		DisplayName:        "Premium",
		TokenLimit:         &tokens,
		PapersLimit:        &papers,
		MaxStudyPlans:      &plans,
		CanAccessStudyPlan: true,
	}
}

func TestChargeTokensWithinLimit(t *testing.T) {
	repo := newFakeRepo(limitedTier(1000, 5, 3))
	svc := NewService(repo)

	res, err := svc.ChargeTokens(context.Background(), 1, 400, false)
	require.NoError(t, err)
	assert.EqualValues(t, 400, res.TokensUsed)
	require.NotNil(t, res.TokensRemaining)
	assert.EqualValues(t, 600, *res.TokensRemaining)
}

func TestChargeTokensRejectsOverflow(t *testing.T) {
	repo := newFakeRepo(limitedTier(1000, 5, 3))
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.ChargeTokens(ctx, 1, 900, false)
	require.NoError(t, err)

	_, err = svc.ChargeTokens(ctx, 1, 101, false)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.EqualValues(t, 900, repo.sub.TokensUsedCurrentPeriod)

	// A charge that exactly fills the limit still passes.
	res, err := svc.ChargeTokens(ctx, 1, 100, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, res.TokensUsed)
}

func TestChargeTokensHonorsOverride(t *testing.T) {
	repo := newFakeRepo(limitedTier(50000, 5, 3))
	override := int64(60000)
	repo.sub.TokenLimitOverride = &override
	svc := NewService(repo)

	res, err := svc.ChargeTokens(context.Background(), 1, 55000, false)
	require.NoError(t, err)
	require.NotNil(t, res.TokenLimit)
	assert.EqualValues(t, 60000, *res.TokenLimit)
	assert.EqualValues(t, 5000, *res.TokensRemaining)
}

func TestChargeTokensBypassMetersButNeverBlocks(t *testing.T) {
	repo := newFakeRepo(limitedTier(100, 5, 3))
	svc := NewService(repo)

	res, err := svc.ChargeTokens(context.Background(), 1, 5000, true)
	require.NoError(t, err)
	assert.True(t, res.Bypassed)
	assert.EqualValues(t, 5000, res.TokensUsed)
}

func TestChargeTokensConcurrentOverlap(t *testing.T) {
	// 10 workers, 20 tokens each, limit 100: exactly five charges fit and
	// the counter must never pass the limit.
	repo := newFakeRepo(limitedTier(100, 5, 3))
	svc := NewService(repo)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ChargeTokens(context.Background(), 1, 20, false); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, accepted)
	assert.EqualValues(t, 100, repo.sub.TokensUsedCurrentPeriod)
}

func TestChargeTokensWithoutSubscription(t *testing.T) {
	repo := newFakeRepo(limitedTier(100, 5, 3))
	svc := NewService(repo)

	_, err := svc.ChargeTokens(context.Background(), 42, 10, false)
	assert.ErrorIs(t, err, subscription.ErrNoActiveSubscription)
}

func TestRecordPaperAccessDedupsWithinPeriod(t *testing.T) {
	repo := newFakeRepo(limitedTier(1000, 2, 3))
	svc := NewService(repo)
	ctx := context.Background()

	first, err := svc.RecordPaperAccess(ctx, 1, "paper-7")
	require.NoError(t, err)
	assert.True(t, first.Counted)
	assert.Equal(t, 1, first.PapersAccessed)

	repeat, err := svc.RecordPaperAccess(ctx, 1, "paper-7")
	require.NoError(t, err)
	assert.False(t, repeat.Counted)
	assert.Equal(t, 1, repeat.PapersAccessed)

	_, err = svc.RecordPaperAccess(ctx, 1, "paper-8")
	require.NoError(t, err)

	_, err = svc.RecordPaperAccess(ctx, 1, "paper-9")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestStudyPlanQuotaGate(t *testing.T) {
	repo := newFakeRepo(limitedTier(1000, 5, 3))
	svc := NewService(repo)
	ctx := context.Background()

	repo.planCount = 2
	q, err := svc.CheckStudyPlanQuota(ctx, 1)
	require.NoError(t, err)
	assert.True(t, q.Allowed)
	assert.Equal(t, 1, *q.Remaining)

	// Creation moves the count to 3.
	plan, err := svc.CreateStudyPlan(ctx, 1, 11, 9, "Algebra revision")
	require.NoError(t, err)
	assert.NotZero(t, plan.ID)

	q, err = svc.CheckStudyPlanQuota(ctx, 1)
	require.NoError(t, err)
	assert.False(t, q.Allowed)
	assert.Equal(t, 0, *q.Remaining)

	// The authoritative in-transaction check blocks the fourth plan.
	_, err = svc.CreateStudyPlan(ctx, 1, 12, 9, "One too many")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestStudyPlanUnlimitedTier(t *testing.T) {
	tier := limitedTier(1000, 5, 3)
	tier.MaxStudyPlans = nil
	repo := newFakeRepo(tier)
	svc := NewService(repo)

	q, err := svc.CheckStudyPlanQuota(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, q.Allowed)
	assert.Nil(t, q.Limit)
	assert.Nil(t, q.Remaining)
}

func TestStudyPlanNotPermittedTier(t *testing.T) {
	tier := limitedTier(1000, 5, 3)
	tier.CanAccessStudyPlan = false
	repo := newFakeRepo(tier)
	svc := NewService(repo)

	_, err := svc.CheckStudyPlanQuota(context.Background(), 1)
	assert.ErrorIs(t, err, ErrStudyPlanNotPermitted)
}
