// Package deals implements the subscription operations behind the chat commands.
package deals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"sale_bot/internal/filter"
	"sale_bot/internal/model"
	"sale_bot/internal/notify"
	"sale_bot/internal/seen"
	"sale_bot/internal/storage"
	"sale_bot/internal/tags"
)

// SubscribeFetchCount is how many listings a new subscription fetches at once.
const SubscribeFetchCount = 50

// ErrInvalidValue is returned for preference values out of range.
var ErrInvalidValue = errors.New("invalid value")

// Fetcher loads the current specials for a tag.
type Fetcher interface {
	FetchSpecials(ctx context.Context, tagID int64, start, count int) ([]model.SaleListing, error)
}

// Origin identifies who issued a command and where.
type Origin struct {
	GuildID   string
	ChannelID string
	UserID    string
}

func (o Origin) subscription(tagID int64) model.Subscription {
	return model.Subscription{
		Kind:      model.KindTag,
		TagID:     tagID,
		GuildID:   o.GuildID,
		ChannelID: o.ChannelID,
		UserID:    o.UserID,
	}
}

// SubscribeResult describes what a subscribe did, so the caller can tell
// "nothing on sale" from "filters too strict" from "already posted".
type SubscribeResult struct {
	Tag          tags.Tag
	Subscription model.Subscription
	Created      bool
	Fetched      int
	Matched      int
	Fresh        int
	Delivered    int
	FetchErr     error
}

// Listed is one subscription with its display name.
type Listed struct {
	Subscription model.Subscription
	TagName      string
}

// Service runs the subscription operations.
type Service struct {
	store   storage.Storage
	tracker *seen.Tracker
	fetcher Fetcher
	queue   *notify.Queue
	flusher *notify.Flusher
	catalog *tags.Catalog
	logger  *slog.Logger
}

// New creates a Service.
func New(store storage.Storage, f Fetcher, q *notify.Queue, fl *notify.Flusher, catalog *tags.Catalog, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		tracker: seen.New(store),
		fetcher: f,
		queue:   q,
		flusher: fl,
		catalog: catalog,
		logger:  logger,
	}
}

// Catalog returns the tag catalogue used to resolve queries.
func (s *Service) Catalog() *tags.Catalog {
	return s.catalog
}

// Subscribe creates (or finds) the tag subscription and immediately posts
// the current specials that pass the channel's filters and were never
// posted for this subscription or channel.
func (s *Service) Subscribe(ctx context.Context, o Origin, query string) (SubscribeResult, error) {
	tag, err := s.catalog.Resolve(query)
	if err != nil {
		return SubscribeResult{}, err
	}

	sub := o.subscription(tag.ID)
	created, err := s.store.CreateOrGetUserSub(ctx, &sub)
	if err != nil {
		return SubscribeResult{}, fmt.Errorf("create subscription: %w", err)
	}
	res := SubscribeResult{Tag: tag, Subscription: sub, Created: created}

	listings, err := s.fetcher.FetchSpecials(ctx, tag.ID, 0, SubscribeFetchCount)
	if err != nil {
		s.logger.Warn("fetch on subscribe", "tag_id", tag.ID, "error", err)
		res.FetchErr = err
		return res, nil
	}
	res.Fetched = len(listings)

	prefs, err := s.store.GetChannelPreferences(ctx, o.ChannelID)
	if err != nil {
		return res, fmt.Errorf("get preferences: %w", err)
	}
	matched := filter.Apply(listings, prefs)
	res.Matched = len(matched)

	fresh, err := s.tracker.Fresh(ctx, matched, seen.SubscriptionScope(sub.ID), seen.ChannelScope(o.ChannelID))
	if err != nil {
		s.logger.Error("dedupe on subscribe", "sub_id", sub.ID, "error", err)
	}
	res.Fresh = len(fresh)
	if len(fresh) == 0 {
		return res, nil
	}

	target := model.ChannelTarget(o.ChannelID)
	scope := "subscribe:" + strconv.FormatInt(sub.ID, 10)
	s.queue.Enqueue(target, fresh, notify.EnqueueOptions{Prepend: true, Scope: scope})
	res.Delivered = s.flusher.FlushTarget(ctx, target, scope)

	s.logger.Info("subscribed",
		"channel_id", o.ChannelID, "tag_id", tag.ID, "created", created,
		"fetched", res.Fetched, "matched", res.Matched, "fresh", res.Fresh, "delivered", res.Delivered)
	return res, nil
}

// Unsubscribe removes the user's subscription to the tag. It reports
// whether one existed.
func (s *Service) Unsubscribe(ctx context.Context, o Origin, query string) (tags.Tag, bool, error) {
	tag, err := s.catalog.Resolve(query)
	if err != nil {
		return tags.Tag{}, false, err
	}
	ok, err := s.store.DeleteUserSub(ctx, o.subscription(tag.ID))
	if err != nil {
		return tag, false, fmt.Errorf("delete subscription: %w", err)
	}
	return tag, ok, nil
}

// UnsubscribeAll removes every subscription the user has in the channel.
func (s *Service) UnsubscribeAll(ctx context.Context, o Origin) (int64, error) {
	n, err := s.store.DeleteAllUserSubs(ctx, o.GuildID, o.ChannelID, o.UserID)
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions: %w", err)
	}
	return n, nil
}

// List returns the user's subscriptions in the channel.
func (s *Service) List(ctx context.Context, o Origin) ([]Listed, error) {
	subs, err := s.store.ListUserSubs(ctx, o.GuildID, o.ChannelID, o.UserID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	out := make([]Listed, len(subs))
	for i, sub := range subs {
		out[i] = Listed{Subscription: sub, TagName: s.catalog.Name(sub.TagID)}
	}
	return out, nil
}

// Settings returns the channel's filter preferences.
func (s *Service) Settings(ctx context.Context, channelID string) (model.ChannelPreferences, error) {
	prefs, err := s.store.GetChannelPreferences(ctx, channelID)
	if err != nil {
		return model.ChannelPreferences{}, fmt.Errorf("get preferences: %w", err)
	}
	return prefs, nil
}

// SetPreferences validates and applies a partial preference update.
func (s *Service) SetPreferences(ctx context.Context, channelID string, patch model.PreferencesPatch) (model.ChannelPreferences, error) {
	if err := Validate(patch); err != nil {
		return model.ChannelPreferences{}, err
	}
	prefs, err := s.store.UpdateChannelPreferences(ctx, channelID, patch)
	if err != nil {
		return model.ChannelPreferences{}, fmt.Errorf("update preferences: %w", err)
	}
	return prefs, nil
}

// Validate checks the ranges of the supplied patch fields.
func Validate(patch model.PreferencesPatch) error {
	if v := patch.MinDiscount.Value(); v != nil && (*v < 0 || *v > 99) {
		return fmt.Errorf("%w: minimum discount must be between 0 and 99", ErrInvalidValue)
	}
	if v := patch.MaxPrice.Value(); v != nil && *v < 0 {
		return fmt.Errorf("%w: maximum price must not be negative", ErrInvalidValue)
	}
	if v := patch.MinReviews.Value(); v != nil && *v < 0 {
		return fmt.Errorf("%w: minimum reviews must not be negative", ErrInvalidValue)
	}
	for _, v := range []*int{patch.MinYear.Value(), patch.MaxYear.Value()} {
		if v != nil && (*v < 1970 || *v > 2100) {
			return fmt.Errorf("%w: year must be between 1970 and 2100", ErrInvalidValue)
		}
	}
	return nil
}

// ClearHistory forgets what was posted to the channel, so matching sales
// are posted again. With a tag query only that tag's subscription history
// is cleared, together with the whole channel-wide history.
func (s *Service) ClearHistory(ctx context.Context, channelID, tagQuery string) (model.ClearResult, *tags.Tag, error) {
	if tagQuery == "" {
		res, err := s.tracker.ClearHistory(ctx, channelID)
		if err != nil {
			return model.ClearResult{}, nil, fmt.Errorf("clear history: %w", err)
		}
		return res, nil, nil
	}

	tag, err := s.catalog.Resolve(tagQuery)
	if err != nil {
		return model.ClearResult{}, nil, err
	}
	res, err := s.tracker.ClearHistoryForTag(ctx, channelID, tag.ID)
	if err != nil {
		return model.ClearResult{}, &tag, fmt.Errorf("clear history: %w", err)
	}
	return res, &tag, nil
}
