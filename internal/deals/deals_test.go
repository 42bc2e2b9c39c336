package deals

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sale_bot/internal/model"
	"sale_bot/internal/notify"
	"sale_bot/internal/storage"
	"sale_bot/internal/tags"
)

type fakeFetcher struct {
	byTag map[int64][]model.SaleListing
	err   error
	calls int
}

func (f *fakeFetcher) FetchSpecials(_ context.Context, tagID int64, _, count int) ([]model.SaleListing, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	ls := f.byTag[tagID]
	if len(ls) > count {
		ls = ls[:count]
	}
	return ls, nil
}

type recordingTransport struct {
	mu      sync.Mutex
	batches [][]int64
}

func (r *recordingTransport) Send(_ context.Context, _ model.Target, ls []model.SaleListing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for _, l := range ls {
		ids = append(ids, l.AppID)
	}
	r.batches = append(r.batches, ids)
	return nil
}

func sale(id int64, pct int) model.SaleListing {
	return model.SaleListing{
		AppID:        id,
		Title:        "Game",
		URL:          "https://store.steampowered.com/app/",
		DiscountText: "-" + strconv.Itoa(pct) + "%",
		PriceText:    "9,99€",
		DiscountPct:  &pct,
	}
}

type fixture struct {
	svc       *Service
	store     *storage.SQLite
	fetcher   *fakeFetcher
	queue     *notify.Queue
	transport *recordingTransport
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	catalog, err := tags.Default()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fakeFetcher{byTag: map[int64][]model.SaleListing{}}
	q := notify.NewQueue(100, nil)
	tr := &recordingTransport{}
	fl := notify.NewFlusher(q, tr, 8, logger)

	return &fixture{
		svc:       New(store, f, q, fl, catalog, logger),
		store:     store,
		fetcher:   f,
		queue:     q,
		transport: tr,
	}
}

var origin = Origin{GuildID: "-100", ChannelID: "-100", UserID: "7"}

func TestSubscribeDeliversImmediately(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.fetcher.byTag[122] = []model.SaleListing{sale(1, 50), sale(2, 75)}

	res, err := fx.svc.Subscribe(ctx, origin, "rpg")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !res.Created || res.Tag.Name != "RPG" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Fetched != 2 || res.Matched != 2 || res.Fresh != 2 || res.Delivered != 2 {
		t.Errorf("counts = %d/%d/%d/%d, want 2/2/2/2", res.Fetched, res.Matched, res.Fresh, res.Delivered)
	}
	if diff := cmp.Diff([][]int64{{1, 2}}, fx.transport.batches); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}

	again, err := fx.svc.Subscribe(ctx, origin, "122")
	if err != nil {
		t.Fatalf("subscribe again: %v", err)
	}
	if again.Created {
		t.Error("expected existing subscription to be reused")
	}
	if again.Subscription.ID != res.Subscription.ID {
		t.Errorf("sub id = %d, want %d", again.Subscription.ID, res.Subscription.ID)
	}
	if again.Fresh != 0 || len(fx.transport.batches) != 1 {
		t.Errorf("expected nothing reposted, fresh=%d batches=%d", again.Fresh, len(fx.transport.batches))
	}
}

func TestSubscribeChannelWideDedupe(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.fetcher.byTag[122] = []model.SaleListing{sale(1, 50)}
	fx.fetcher.byTag[492] = []model.SaleListing{sale(1, 50), sale(3, 40)}

	if _, err := fx.svc.Subscribe(ctx, origin, "RPG"); err != nil {
		t.Fatalf("subscribe rpg: %v", err)
	}
	res, err := fx.svc.Subscribe(ctx, origin, "Indie")
	if err != nil {
		t.Fatalf("subscribe indie: %v", err)
	}
	if res.Fresh != 1 {
		t.Errorf("fresh = %d, want 1", res.Fresh)
	}
	if diff := cmp.Diff([][]int64{{1}, {3}}, fx.transport.batches); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscribeFiltersTooStrict(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.fetcher.byTag[122] = []model.SaleListing{sale(1, 50)}

	if _, err := fx.svc.SetPreferences(ctx, origin.ChannelID, model.PreferencesPatch{MinDiscount: model.Set(90)}); err != nil {
		t.Fatalf("set preferences: %v", err)
	}
	res, err := fx.svc.Subscribe(ctx, origin, "RPG")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if res.Fetched != 1 || res.Matched != 0 || res.Delivered != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSubscribeFetchFailure(t *testing.T) {
	fx := newFixture(t)
	fx.fetcher.err = errors.New("store down")

	res, err := fx.svc.Subscribe(context.Background(), origin, "RPG")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if res.FetchErr == nil || !res.Created {
		t.Errorf("expected created subscription with fetch error, got %+v", res)
	}
}

func TestSubscribeUnknownTag(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Subscribe(context.Background(), origin, "knitting")
	if !errors.Is(err, tags.ErrUnknownTag) {
		t.Fatalf("expected ErrUnknownTag, got %v", err)
	}
	if fx.fetcher.calls != 0 {
		t.Error("expected no fetch for an unknown tag")
	}
}

func TestSubscribeFlushesOwnEntriesFirst(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	target := model.ChannelTarget(origin.ChannelID)
	fx.queue.Enqueue(target, []model.SaleListing{sale(100, 10), sale(101, 10)}, notify.EnqueueOptions{})
	fx.fetcher.byTag[122] = []model.SaleListing{sale(1, 50)}

	if _, err := fx.svc.Subscribe(ctx, origin, "RPG"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if diff := cmp.Diff([][]int64{{1}}, fx.transport.batches); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}
	if n := fx.queue.Len(target); n != 2 {
		t.Errorf("queued = %d, want 2 left for the next flush", n)
	}
}

func TestUnsubscribeAndList(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	for _, q := range []string{"RPG", "Indie", "Roguelike"} {
		if _, err := fx.svc.Subscribe(ctx, origin, q); err != nil {
			t.Fatalf("subscribe %s: %v", q, err)
		}
	}

	tag, ok, err := fx.svc.Unsubscribe(ctx, origin, "indie")
	if err != nil || !ok || tag.ID != 492 {
		t.Fatalf("unsubscribe = %+v %v %v", tag, ok, err)
	}
	if _, ok, _ := fx.svc.Unsubscribe(ctx, origin, "indie"); ok {
		t.Error("expected second unsubscribe to report nothing removed")
	}

	listed, err := fx.svc.List(ctx, origin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, l := range listed {
		names = append(names, l.TagName)
	}
	if diff := cmp.Diff([]string{"RPG", "Roguelike"}, names); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	other := Origin{GuildID: origin.GuildID, ChannelID: origin.ChannelID, UserID: "8"}
	if n, _ := fx.svc.UnsubscribeAll(ctx, other); n != 0 {
		t.Errorf("other user removed %d, want 0", n)
	}
	n, err := fx.svc.UnsubscribeAll(ctx, origin)
	if err != nil || n != 2 {
		t.Errorf("unsubscribe all = %d %v, want 2", n, err)
	}
}

func TestSetPreferences(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	invalid := []model.PreferencesPatch{
		{MinDiscount: model.Set(100)},
		{MinDiscount: model.Set(-1)},
		{MaxPrice: model.Set(-0.5)},
		{MinReviews: model.Set(-3)},
		{MinYear: model.Set(12)},
	}
	for _, p := range invalid {
		if _, err := fx.svc.SetPreferences(ctx, "c", p); !errors.Is(err, ErrInvalidValue) {
			t.Errorf("expected ErrInvalidValue for %+v, got %v", p, err)
		}
	}

	if _, err := fx.svc.SetPreferences(ctx, "c", model.PreferencesPatch{
		MinDiscount: model.Set(40),
		MaxPrice:    model.Set(20.0),
		MinYear:     model.Set(2015),
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := fx.svc.SetPreferences(ctx, "c", model.PreferencesPatch{MaxPrice: model.Clear[float64]()})
	if err != nil {
		t.Fatalf("clear price: %v", err)
	}
	year := 2015
	want := model.ChannelPreferences{ChannelID: "c", MinDiscount: 40, MinYear: &year}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("preferences mismatch (-want +got):\n%s", diff)
	}

	settings, err := fx.svc.Settings(ctx, "c")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if diff := cmp.Diff(want, settings); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestClearHistoryAllowsRepost(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.fetcher.byTag[122] = []model.SaleListing{sale(1, 50)}

	if _, err := fx.svc.Subscribe(ctx, origin, "RPG"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	res, tag, err := fx.svc.ClearHistory(ctx, origin.ChannelID, "RPG")
	if err != nil {
		t.Fatalf("clear history: %v", err)
	}
	if tag == nil || tag.ID != 122 {
		t.Errorf("tag = %+v, want RPG", tag)
	}
	if diff := cmp.Diff(model.ClearResult{SubCount: 1, ChannelCount: 1}, res); diff != "" {
		t.Errorf("clear result mismatch (-want +got):\n%s", diff)
	}

	again, err := fx.svc.Subscribe(ctx, origin, "RPG")
	if err != nil {
		t.Fatalf("subscribe again: %v", err)
	}
	if again.Delivered != 1 {
		t.Errorf("delivered = %d, want 1 after clearing history", again.Delivered)
	}

	if _, _, err := fx.svc.ClearHistory(ctx, origin.ChannelID, "knitting"); !errors.Is(err, tags.ErrUnknownTag) {
		t.Errorf("expected ErrUnknownTag, got %v", err)
	}
	all, tag, err := fx.svc.ClearHistory(ctx, origin.ChannelID, "")
	if err != nil || tag != nil || all.Total() != 2 {
		t.Errorf("clear all = %+v %v %v, want 2 records", all, tag, err)
	}
}
