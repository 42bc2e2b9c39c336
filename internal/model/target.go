package model

import (
	"fmt"
	"strings"
)

// TargetKind distinguishes the two delivery destinations.
type TargetKind int

// Supported target kinds.
const (
	TargetWebhook TargetKind = iota + 1
	TargetChannel
)

const (
	webhookPrefix = "webhook:"
	channelPrefix = "channel:"
)

// Target is a delivery destination: a webhook URL or a chat channel.
type Target struct {
	Kind      TargetKind
	URL       string
	ChannelID string
}

// WebhookTarget returns a target that posts to the given webhook URL.
func WebhookTarget(url string) Target {
	return Target{Kind: TargetWebhook, URL: url}
}

// ChannelTarget returns a target that sends to the given chat channel.
func ChannelTarget(channelID string) Target {
	return Target{Kind: TargetChannel, ChannelID: channelID}
}

// Key is the canonical queue key of the target. Two different URLs are
// different keys even when they reach the same downstream destination.
func (t Target) Key() string {
	if t.Kind == TargetChannel {
		return channelPrefix + t.ChannelID
	}
	return webhookPrefix + t.URL
}

func (t Target) String() string { return t.Key() }

// ParseTargetKey is the inverse of Target.Key.
func ParseTargetKey(key string) (Target, error) {
	switch {
	case strings.HasPrefix(key, webhookPrefix):
		return WebhookTarget(strings.TrimPrefix(key, webhookPrefix)), nil
	case strings.HasPrefix(key, channelPrefix):
		return ChannelTarget(strings.TrimPrefix(key, channelPrefix)), nil
	}
	return Target{}, fmt.Errorf("invalid target key %q", key)
}
