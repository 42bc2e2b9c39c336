// Package model defines the domain types used across the application.
package model

import "time"

// SaleListing is one storefront item on sale, as produced by a single fetch.
type SaleListing struct {
	AppID        int64
	Title        string
	URL          string
	DiscountText string
	PriceText    string

	DiscountPct *int
	PriceOld    *float64
	PriceNew    *float64
	Currency    string
	ReleaseYear int // 0 when unknown
	ReviewCount *int
	ImageURL    string
}

// SubscriptionKind defines what a subscription is interested in.
type SubscriptionKind string

// Supported subscription kinds.
const (
	KindTag     SubscriptionKind = "tag"
	KindCompany SubscriptionKind = "company"
)

// Subscription associates one destination with one interest.
// Bot subscriptions carry GuildID/ChannelID/UserID; webhook subscriptions carry Webhook.
type Subscription struct {
	ID        int64            `json:"id"`
	Kind      SubscriptionKind `json:"kind"`
	TagID     int64            `json:"tag_id,omitempty"`
	Company   string           `json:"company,omitempty"`
	Webhook   string           `json:"notify_webhook,omitempty"`
	GuildID   string           `json:"guild_id,omitempty"`
	ChannelID string           `json:"channel_id,omitempty"`
	UserID    string           `json:"user_id,omitempty"`
}

// Target resolves the delivery destination of the subscription.
func (s Subscription) Target() Target {
	if s.ChannelID != "" {
		return ChannelTarget(s.ChannelID)
	}
	return WebhookTarget(s.Webhook)
}

// ChannelPreferences is the per-channel filter configuration.
type ChannelPreferences struct {
	ChannelID   string   `json:"channel_id"`
	MinDiscount int      `json:"min_discount"`
	MaxPrice    *float64 `json:"max_price"`
	MinYear     *int     `json:"min_year"`
	MaxYear     *int     `json:"max_year"`
	MinReviews  int      `json:"min_reviews"`
}

// Field is a tri-state patch value. The zero value leaves the stored value
// untouched, Clear resets it, and Set replaces it.
type Field[T any] struct {
	set   bool
	value *T
}

// Set returns a Field that replaces the stored value with v.
func Set[T any](v T) Field[T] {
	return Field[T]{set: true, value: &v}
}

// Clear returns a Field that resets the stored value.
func Clear[T any]() Field[T] {
	return Field[T]{set: true}
}

// IsSet reports whether the field was supplied at all.
func (f Field[T]) IsSet() bool { return f.set }

// Value returns the supplied value, or nil for a cleared field.
func (f Field[T]) Value() *T { return f.value }

// PreferencesPatch is a partial update of ChannelPreferences.
type PreferencesPatch struct {
	MinDiscount Field[int]
	MaxPrice    Field[float64]
	MinYear     Field[int]
	MaxYear     Field[int]
	MinReviews  Field[int]
}

// Apply merges the supplied fields into p and returns the result.
// Cleared non-nullable fields fall back to 0.
func (patch PreferencesPatch) Apply(p ChannelPreferences) ChannelPreferences {
	if patch.MinDiscount.IsSet() {
		p.MinDiscount = derefOr(patch.MinDiscount.Value(), 0)
	}
	if patch.MaxPrice.IsSet() {
		p.MaxPrice = patch.MaxPrice.Value()
	}
	if patch.MinYear.IsSet() {
		p.MinYear = patch.MinYear.Value()
	}
	if patch.MaxYear.IsSet() {
		p.MaxYear = patch.MaxYear.Value()
	}
	if patch.MinReviews.IsSet() {
		p.MinReviews = max(0, derefOr(patch.MinReviews.Value(), 0))
	}
	return p
}

func derefOr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

// SeenRecord is the durable fact that a listing was delivered within a scope.
type SeenRecord struct {
	Scope       string
	AppID       int64
	Fingerprint string
	FirstSeen   time.Time
}

// ClearResult reports how many seen records a history clear removed.
type ClearResult struct {
	SubCount     int64
	ChannelCount int64
}

// Total is the number of records removed from both scopes.
func (r ClearResult) Total() int64 { return r.SubCount + r.ChannelCount }
