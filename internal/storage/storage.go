// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"sale_bot/internal/model"
)

// State is the portable copy of subscriptions and channel preferences
// that survives a lost database.
type State struct {
	Subscriptions []model.Subscription
	Preferences   []model.ChannelPreferences
}

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateOrGetUserSub(ctx context.Context, sub *model.Subscription) (bool, error)
	InsertWebhookSub(ctx context.Context, sub *model.Subscription) (bool, error)
	DeleteUserSub(ctx context.Context, sub model.Subscription) (bool, error)
	DeleteAllUserSubs(ctx context.Context, guildID, channelID, userID string) (int64, error)
	ListUserSubs(ctx context.Context, guildID, channelID, userID string) ([]model.Subscription, error)
	ListChannelSubs(ctx context.Context, channelID string) ([]model.Subscription, error)
	ListDistinctChannels(ctx context.Context) ([]string, error)
	ListWebhookSubs(ctx context.Context) ([]model.Subscription, error)

	MarkSeen(ctx context.Context, subID, appID int64, hash string) error
	IsSeen(ctx context.Context, subID, appID int64, hash string) (bool, error)
	MarkChannelSeen(ctx context.Context, channelID string, appID int64, hash string) error
	IsChannelSeen(ctx context.Context, channelID string, appID int64, hash string) (bool, error)
	ClearChannelHistory(ctx context.Context, channelID string) (model.ClearResult, error)
	ClearChannelHistoryForTag(ctx context.Context, channelID string, tagID int64) (model.ClearResult, error)

	GetChannelPreferences(ctx context.Context, channelID string) (model.ChannelPreferences, error)
	UpdateChannelPreferences(ctx context.Context, channelID string, patch model.PreferencesPatch) (model.ChannelPreferences, error)

	ExportState(ctx context.Context) (State, error)
	ImportState(ctx context.Context, st State) error

	Close() error
}
