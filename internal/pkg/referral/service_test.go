package referral

import (
	"context"
	"testing"
	"time"

	"github.com/ManuelReschke/StudyFox/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeRepo is an in-memory Repository with real rollback semantics: a
// Transaction snapshots the state and restores it when fn fails, matching
// what the GORM implementation gets from the database.
type fakeState struct {
	balances     map[uint]*models.ReferralPointsBalance
	txns         []models.ReferralTransaction
	conversions  map[uint]models.ReferralConversion // keyed by referred user
	reservations map[uint]*models.TierReservation
	subs         map[uint][]*models.Subscription
	nextID       uint
}

type fakeRepo struct {
	state *fakeState
	tiers map[uint]*models.Tier
}

func newFakeRepo(tiers ...*models.Tier) *fakeRepo {
	r := &fakeRepo{
		state: &fakeState{
			balances:     map[uint]*models.ReferralPointsBalance{},
			conversions:  map[uint]models.ReferralConversion{},
			reservations: map[uint]*models.TierReservation{},
			subs:         map[uint][]*models.Subscription{},
			nextID:       1,
		},
		tiers: map[uint]*models.Tier{},
	}
	for _, t := range tiers {
		r.tiers[t.ID] = t
	}
	return r
}

func (s *fakeState) clone() *fakeState {
	cp := &fakeState{
		balances:     map[uint]*models.ReferralPointsBalance{},
		txns:         append([]models.ReferralTransaction(nil), s.txns...),
		conversions:  map[uint]models.ReferralConversion{},
		reservations: map[uint]*models.TierReservation{},
		subs:         map[uint][]*models.Subscription{},
		nextID:       s.nextID,
	}
	for k, v := range s.balances {
		b := *v
		cp.balances[k] = &b
	}
	for k, v := range s.conversions {
		cp.conversions[k] = v
	}
	for k, v := range s.reservations {
		res := *v
		cp.reservations[k] = &res
	}
	for k, list := range s.subs {
		for _, sub := range list {
			c := *sub
			cp.subs[k] = append(cp.subs[k], &c)
		}
	}
	return cp
}

func (r *fakeRepo) Transaction(fn func(tx Repository) error) error {
	snapshot := r.state.clone()
	if err := fn(r); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *fakeRepo) id() uint {
	id := r.state.nextID
	r.state.nextID++
	return id
}

func (r *fakeRepo) GetOrCreateBalance(userID uint) (*models.ReferralPointsBalance, error) {
	if b, ok := r.state.balances[userID]; ok {
		cp := *b
		return &cp, nil
	}
	b := &models.ReferralPointsBalance{ID: r.id(), UserID: userID, ReferralCode: models.NewReferralCode()}
	r.state.balances[userID] = b
	cp := *b
	return &cp, nil
}

func (r *fakeRepo) GetBalanceByCode(code string) (*models.ReferralPointsBalance, error) {
	for _, b := range r.state.balances {
		if b.ReferralCode == code {
			cp := *b
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ListTransactions(userID uint) ([]models.ReferralTransaction, error) {
	var out []models.ReferralTransaction
	for _, t := range r.state.txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeRepo) AppendTransaction(txn *models.ReferralTransaction) error {
	txn.ID = r.id()
	r.state.txns = append(r.state.txns, *txn)
	return nil
}

func (r *fakeRepo) DebitPoints(userID uint, amount int64) (bool, error) {
	b, ok := r.state.balances[userID]
	if !ok || b.PointsBalance < amount {
		return false, nil
	}
	b.PointsBalance -= amount
	b.TotalSpent += amount
	return true, nil
}

func (r *fakeRepo) CreditPoints(userID uint, amount int64) error {
	b, _ := r.state.balances[userID]
	if b == nil {
		return gorm.ErrRecordNotFound
	}
	b.PointsBalance += amount
	b.TotalEarned += amount
	return nil
}

func (r *fakeRepo) RefundPoints(userID uint, amount int64) error {
	b, _ := r.state.balances[userID]
	if b == nil {
		return gorm.ErrRecordNotFound
	}
	b.PointsBalance += amount
	b.TotalSpent -= amount
	return nil
}

func (r *fakeRepo) IncrementTotalReferrals(userID uint) error {
	if b := r.state.balances[userID]; b != nil {
		b.TotalReferrals++
	}
	return nil
}

func (r *fakeRepo) IncrementSuccessfulReferrals(userID uint) error {
	if b := r.state.balances[userID]; b != nil {
		b.SuccessfulReferrals++
	}
	return nil
}

func (r *fakeRepo) CreateConversion(conv *models.ReferralConversion) (bool, error) {
	if _, exists := r.state.conversions[conv.ReferredUserID]; exists {
		return false, nil
	}
	conv.ID = r.id()
	r.state.conversions[conv.ReferredUserID] = *conv
	return true, nil
}

func (r *fakeRepo) GetPendingReservation(userID uint) (*models.TierReservation, error) {
	for _, res := range r.state.reservations {
		if res.UserID == userID && res.Status == models.ReservationStatusPending {
			cp := *res
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) CreateReservation(res *models.TierReservation) error {
	res.ID = r.id()
	cp := *res
	r.state.reservations[res.ID] = &cp
	return nil
}

func (r *fakeRepo) FinalizeReservation(resID uint) (bool, error) {
	return r.transition(resID, models.ReservationStatusFinalized), nil
}

func (r *fakeRepo) ReleaseReservation(resID uint) (bool, error) {
	return r.transition(resID, models.ReservationStatusReleased), nil
}

func (r *fakeRepo) transition(resID uint, to string) bool {
	res, ok := r.state.reservations[resID]
	if !ok || res.Status != models.ReservationStatusPending {
		return false
	}
	res.Status = to
	res.PendingUserID = nil
	return true
}

func (r *fakeRepo) ListExpiredPending(now time.Time) ([]models.TierReservation, error) {
	var out []models.TierReservation
	for _, res := range r.state.reservations {
		if res.Status == models.ReservationStatusPending && res.IsExpired(now) {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetTierByID(id uint) (*models.Tier, error) {
	if t, ok := r.tiers[id]; ok {
		return t, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ReplaceActiveSubscription(userID uint, next *models.Subscription) error {
	for _, sub := range r.state.subs[userID] {
		if sub.Status == models.SubscriptionStatusActive {
			sub.Status = models.SubscriptionStatusInactive
			sub.ActiveUserID = nil
		}
	}
	next.ID = r.id()
	cp := *next
	r.state.subs[userID] = append(r.state.subs[userID], &cp)
	return nil
}

func (r *fakeRepo) activeSub(userID uint) *models.Subscription {
	for _, sub := range r.state.subs[userID] {
		if sub.Status == models.SubscriptionStatusActive {
			return sub
		}
	}
	return nil
}

func (r *fakeRepo) balance(t *testing.T, userID uint) *models.ReferralPointsBalance {
	t.Helper()
	b, ok := r.state.balances[userID]
	require.True(t, ok, "balance for user %d", userID)
	return b
}

func (r *fakeRepo) ledgerSum(userID uint) int64 {
	var sum int64
	for _, txn := range r.state.txns {
		if txn.UserID == userID {
			sum += txn.PointsDelta
		}
	}
	return sum
}

func maxSubjects(n int) *int { return &n }

func flatTier() *models.Tier {
	return &models.Tier{ID: 10, Name: "premium", DisplayName: "Premium", PointsCost: 500, ReferralPointsAwarded: 100, IsActive: true}
}

func selectionTier() *models.Tier {
	return &models.Tier{
		ID:                20,
		Name:              "premium_max",
		DisplayName:       "Premium Max",
		PointsCost:        1200,
		CanSelectGrade:    true,
		CanSelectSubjects: true,
		MaxSubjects:       maxSubjects(3),
		IsActive:          true,
	}
}

func retiredTier() *models.Tier {
	return &models.Tier{ID: 30, Name: "premium_legacy", DisplayName: "Premium Legacy", PointsCost: 400, IsActive: false}
}

func seedPoints(t *testing.T, repo *fakeRepo, userID uint, points int64) {
	t.Helper()
	_, err := repo.GetOrCreateBalance(userID)
	require.NoError(t, err)
	repo.state.balances[userID].PointsBalance = points
	repo.state.balances[userID].TotalEarned = points
	require.NoError(t, repo.AppendTransaction(&models.ReferralTransaction{
		UserID:      userID,
		Type:        models.ReferralTxTypeEarn,
		PointsDelta: points,
		Description: "seed",
	}))
}

func TestRedeemInsufficientPoints(t *testing.T) {
	repo := newFakeRepo(flatTier())
	svc := NewService(repo)
	seedPoints(t, repo, 1, 450)

	_, err := svc.Redeem(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	// Balance untouched, no debit entry, no subscription.
	assert.EqualValues(t, 450, repo.balance(t, 1).PointsBalance)
	assert.EqualValues(t, 450, repo.ledgerSum(1))
	assert.Nil(t, repo.activeSub(1))
}

func TestRedeemFlatTierActivatesImmediately(t *testing.T) {
	repo := newFakeRepo(flatTier())
	svc := NewService(repo)
	seedPoints(t, repo, 1, 600)

	res, err := svc.Redeem(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.True(t, res.Activated)
	require.NotNil(t, res.Subscription)
	assert.Equal(t, PaymentProviderPoints, res.Subscription.PaymentProvider)
	assert.NotNil(t, res.Subscription.EndDate)

	bal := repo.balance(t, 1)
	assert.EqualValues(t, 100, bal.PointsBalance)
	assert.EqualValues(t, bal.PointsBalance, repo.ledgerSum(1))
	require.NotNil(t, repo.activeSub(1))
	assert.Equal(t, uint(10), repo.activeSub(1).TierID)
}

func TestRedeemNotRedeemableTier(t *testing.T) {
	free := &models.Tier{ID: 1, Name: "free", PointsCost: 0}
	repo := newFakeRepo(free)
	svc := NewService(repo)
	seedPoints(t, repo, 1, 5000)

	_, err := svc.Redeem(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrTierNotRedeemable)
}

func TestRedeemRetiredTier(t *testing.T) {
	repo := newFakeRepo(retiredTier())
	svc := NewService(repo)
	seedPoints(t, repo, 1, 5000)

	_, err := svc.Redeem(context.Background(), 1, 30)
	assert.ErrorIs(t, err, ErrTierNotRedeemable)
	assert.EqualValues(t, 5000, repo.balance(t, 1).PointsBalance)
}

func TestTwoPhaseRedemption(t *testing.T) {
	repo := newFakeRepo(selectionTier())
	svc := NewService(repo)
	ctx := context.Background()
	seedPoints(t, repo, 1, 1500)

	res, err := svc.Redeem(ctx, 1, 20)
	require.NoError(t, err)
	assert.False(t, res.Activated)
	require.NotNil(t, res.Reservation)
	assert.EqualValues(t, 1200, res.Reservation.PointsDebited)

	// Debited but nothing activated yet.
	assert.EqualValues(t, 300, repo.balance(t, 1).PointsBalance)
	assert.Nil(t, repo.activeSub(1))

	// Invalid selection keeps the reservation open.
	grade := uint(8)
	_, err = svc.FinalizeRedemption(ctx, 1, &grade, []uint{1, 2, 3, 4})
	require.Error(t, err)
	pending, err := repo.GetPendingReservation(1)
	require.NoError(t, err)
	assert.True(t, pending.IsPending())
	assert.EqualValues(t, 300, repo.balance(t, 1).PointsBalance)

	// Valid selection finalizes and activates in one step.
	sub, err := svc.FinalizeRedemption(ctx, 1, &grade, []uint{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, uint(20), sub.TierID)
	assert.Equal(t, []uint{1, 2, 3}, sub.SubjectIDs())

	_, err = repo.GetPendingReservation(1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.EqualValues(t, 300, repo.balance(t, 1).PointsBalance)
	assert.EqualValues(t, repo.balance(t, 1).PointsBalance, repo.ledgerSum(1))
}

func TestFinalizeWithoutReservation(t *testing.T) {
	repo := newFakeRepo(selectionTier())
	svc := NewService(repo)

	grade := uint(8)
	_, err := svc.FinalizeRedemption(context.Background(), 1, &grade, nil)
	assert.ErrorIs(t, err, ErrNoPendingReservation)
}

func TestFinalizeExpiredReservationRefunds(t *testing.T) {
	repo := newFakeRepo(selectionTier())
	svc := NewService(repo)
	ctx := context.Background()
	seedPoints(t, repo, 1, 1500)

	_, err := svc.Redeem(ctx, 1, 20)
	require.NoError(t, err)

	// Force the reservation past its deadline.
	for _, res := range repo.state.reservations {
		res.ExpiresAt = time.Now().Add(-time.Minute)
	}

	grade := uint(8)
	_, err = svc.FinalizeRedemption(ctx, 1, &grade, []uint{1})
	assert.ErrorIs(t, err, ErrReservationExpired)

	// Debit refunded, nothing dangling.
	assert.EqualValues(t, 1500, repo.balance(t, 1).PointsBalance)
	assert.EqualValues(t, 1500, repo.ledgerSum(1))
	assert.Nil(t, repo.activeSub(1))
	_, err = repo.GetPendingReservation(1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// The refund committed, so a retry finds nothing to finalize.
	_, err = svc.FinalizeRedemption(ctx, 1, &grade, []uint{1})
	assert.ErrorIs(t, err, ErrNoPendingReservation)
}

func TestRedeemSupersedesPendingReservation(t *testing.T) {
	repo := newFakeRepo(selectionTier(), flatTier())
	svc := NewService(repo)
	ctx := context.Background()
	seedPoints(t, repo, 1, 2000)

	_, err := svc.Redeem(ctx, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 800, repo.balance(t, 1).PointsBalance)

	// Redeeming the flat tier refunds the pending 1200 first, then debits 500.
	res, err := svc.Redeem(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, res.Activated)
	assert.EqualValues(t, 1500, repo.balance(t, 1).PointsBalance)
	assert.EqualValues(t, repo.balance(t, 1).PointsBalance, repo.ledgerSum(1))

	_, err = repo.GetPendingReservation(1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReleaseExpiredReservations(t *testing.T) {
	repo := newFakeRepo(selectionTier())
	svc := NewService(repo)
	ctx := context.Background()
	seedPoints(t, repo, 1, 1500)

	_, err := svc.Redeem(ctx, 1, 20)
	require.NoError(t, err)

	released, err := svc.ReleaseExpiredReservations(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	released, err = svc.ReleaseExpiredReservations(ctx, time.Now().Add(models.DefaultReservationTTL+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.EqualValues(t, 1500, repo.balance(t, 1).PointsBalance)

	// Sweeping again is a no-op.
	released, err = svc.ReleaseExpiredReservations(ctx, time.Now().Add(models.DefaultReservationTTL+time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, released)
	assert.EqualValues(t, 1500, repo.balance(t, 1).PointsBalance)
}

func TestCreditReferralFirstConversionOnly(t *testing.T) {
	tier := flatTier()
	repo := newFakeRepo(tier)
	svc := NewService(repo)
	ctx := context.Background()

	referrer, err := svc.Balance(ctx, 1)
	require.NoError(t, err)

	credited, err := svc.CreditReferral(ctx, referrer.ReferralCode, 2, tier)
	require.NoError(t, err)
	assert.True(t, credited)
	assert.EqualValues(t, 100, repo.balance(t, 1).PointsBalance)
	assert.Equal(t, 1, repo.balance(t, 1).SuccessfulReferrals)

	// A second conversion by the same referred user earns nothing.
	credited, err = svc.CreditReferral(ctx, referrer.ReferralCode, 2, tier)
	require.NoError(t, err)
	assert.False(t, credited)
	assert.EqualValues(t, 100, repo.balance(t, 1).PointsBalance)
	assert.Equal(t, 1, repo.balance(t, 1).SuccessfulReferrals)
	assert.EqualValues(t, repo.balance(t, 1).PointsBalance, repo.ledgerSum(1))
}

func TestCreditReferralIgnoresSelfReferral(t *testing.T) {
	tier := flatTier()
	repo := newFakeRepo(tier)
	svc := NewService(repo)
	ctx := context.Background()

	me, err := svc.Balance(ctx, 1)
	require.NoError(t, err)

	credited, err := svc.CreditReferral(ctx, me.ReferralCode, 1, tier)
	require.NoError(t, err)
	assert.False(t, credited)
	assert.EqualValues(t, 0, repo.balance(t, 1).PointsBalance)
}

func TestRegisterSignupCountsReferral(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	referrer, err := svc.Balance(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, svc.RegisterSignup(ctx, referrer.ReferralCode))
	require.NoError(t, svc.RegisterSignup(ctx, referrer.ReferralCode))
	assert.Equal(t, 2, repo.balance(t, 1).TotalReferrals)
}
