// Package seen tracks which sale listings were already delivered.
package seen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"sale_bot/internal/model"
)

// Fingerprint returns a stable hash of the listing identity. A changed
// discount or price yields a new fingerprint, so the sale is announced again.
func Fingerprint(appID int64, discountText, priceText string) string {
	h := sha256.Sum256([]byte(strconv.FormatInt(appID, 10) + "|" + discountText + "|" + priceText))
	return hex.EncodeToString(h[:])
}

// ListingFingerprint is Fingerprint applied to a parsed listing.
func ListingFingerprint(l model.SaleListing) string {
	return Fingerprint(l.AppID, l.DiscountText, l.PriceText)
}

// Store is the durable seen-record storage.
type Store interface {
	MarkSeen(ctx context.Context, subID, appID int64, hash string) error
	IsSeen(ctx context.Context, subID, appID int64, hash string) (bool, error)
	MarkChannelSeen(ctx context.Context, channelID string, appID int64, hash string) error
	IsChannelSeen(ctx context.Context, channelID string, appID int64, hash string) (bool, error)
	ClearChannelHistory(ctx context.Context, channelID string) (model.ClearResult, error)
	ClearChannelHistoryForTag(ctx context.Context, channelID string, tagID int64) (model.ClearResult, error)
}

// Scope is either a subscription or a channel.
type Scope struct {
	SubscriptionID int64
	ChannelID      string
}

// SubscriptionScope scopes records to one subscription.
func SubscriptionScope(id int64) Scope { return Scope{SubscriptionID: id} }

// ChannelScope scopes records to one channel, across its subscriptions.
func ChannelScope(id string) Scope { return Scope{ChannelID: id} }

func (s Scope) String() string {
	if s.ChannelID != "" {
		return "channel:" + s.ChannelID
	}
	return "sub:" + strconv.FormatInt(s.SubscriptionID, 10)
}

// Tracker answers and records seen state per scope.
type Tracker struct {
	store Store
}

// New creates a Tracker over store.
func New(store Store) *Tracker {
	return &Tracker{store: store}
}

// IsSeen reports whether the fingerprint was recorded in scope.
func (t *Tracker) IsSeen(ctx context.Context, scope Scope, appID int64, fp string) (bool, error) {
	if scope.ChannelID != "" {
		return t.store.IsChannelSeen(ctx, scope.ChannelID, appID, fp)
	}
	return t.store.IsSeen(ctx, scope.SubscriptionID, appID, fp)
}

// MarkSeen records the fingerprint in scope. Repeated calls are no-ops.
func (t *Tracker) MarkSeen(ctx context.Context, scope Scope, appID int64, fp string) error {
	if scope.ChannelID != "" {
		return t.store.MarkChannelSeen(ctx, scope.ChannelID, appID, fp)
	}
	return t.store.MarkSeen(ctx, scope.SubscriptionID, appID, fp)
}

// Fresh returns the listings not yet seen in any of scopes and marks them
// seen in all of them. Order is preserved. On error the listings already
// marked are returned with it, so they can still be delivered.
func (t *Tracker) Fresh(ctx context.Context, listings []model.SaleListing, scopes ...Scope) ([]model.SaleListing, error) {
	var fresh []model.SaleListing
	for _, l := range listings {
		fp := ListingFingerprint(l)
		isNew := true
		for _, sc := range scopes {
			ok, err := t.IsSeen(ctx, sc, l.AppID, fp)
			if err != nil {
				return fresh, fmt.Errorf("check %s: %w", sc, err)
			}
			if ok {
				isNew = false
				break
			}
		}
		if !isNew {
			continue
		}
		for _, sc := range scopes {
			if err := t.MarkSeen(ctx, sc, l.AppID, fp); err != nil {
				return fresh, fmt.Errorf("mark %s: %w", sc, err)
			}
		}
		fresh = append(fresh, l)
	}
	return fresh, nil
}

// ClearHistory forgets everything delivered to the channel.
func (t *Tracker) ClearHistory(ctx context.Context, channelID string) (model.ClearResult, error) {
	return t.store.ClearChannelHistory(ctx, channelID)
}

// ClearHistoryForTag forgets the channel's deliveries for one tag. The
// channel-wide records carry no tag and are cleared entirely.
func (t *Tracker) ClearHistoryForTag(ctx context.Context, channelID string, tagID int64) (model.ClearResult, error) {
	return t.store.ClearChannelHistoryForTag(ctx, channelID, tagID)
}
