package payment

import "time"

// Webhook event types the processor understands. Anything else is stored
// for audit but skipped.
const (
	EventCheckoutCompleted     = "checkout.completed"
	EventSubscriptionCancelled = "subscription.cancelled"
)

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// NormalizedCheckout is the provider-agnostic shape of a completed checkout,
// decoded from the gateway payload before the tier transition is applied.
type NormalizedCheckout struct {
	UserID              uint       `json:"user_id"`
	Tier                string     `json:"tier"`
	BillingCycle        string     `json:"billing_cycle"`
	IsRecurring         bool       `json:"is_recurring"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
	GradeID             *uint      `json:"grade_id,omitempty"`
	SubjectIDs          []uint     `json:"subject_ids,omitempty"`
	ReferralCode        string     `json:"referral_code,omitempty"`
}

// NormalizedCancellation is the provider-agnostic shape of a cancellation
// notice. The subscription stays active until its period ends.
type NormalizedCancellation struct {
	UserID uint   `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}
