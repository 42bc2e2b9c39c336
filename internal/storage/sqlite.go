package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"sale_bot/internal/model"
	"sale_bot/migrations"
)

const subColumns = `id, kind, tag_id, company, notify_webhook, guild_id, channel_id, user_id`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB

	mu       sync.RWMutex
	onChange func()
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// OnChange registers fn to run once after every operation that changed
// subscriptions or channel preferences.
func (s *SQLite) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *SQLite) changed() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateOrGetUserSub inserts a channel tag subscription unless the same
// (guild, channel, user, tag) already exists, and populates sub.ID either way.
// It reports whether a row was created.
func (s *SQLite) CreateOrGetUserSub(ctx context.Context, sub *model.Subscription) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (kind, tag_id, guild_id, channel_id, user_id, notify_webhook)
		 VALUES ('tag', ?, ?, ?, ?, NULL)`,
		sub.TagID, sub.GuildID, sub.ChannelID, sub.UserID,
	)
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM subscriptions
		 WHERE kind = 'tag' AND tag_id = ? AND guild_id = ? AND channel_id = ? AND user_id = ?
		 ORDER BY id LIMIT 1`,
		sub.TagID, sub.GuildID, sub.ChannelID, sub.UserID,
	).Scan(&sub.ID)
	if err != nil {
		return false, fmt.Errorf("select subscription id: %w", err)
	}
	sub.Kind = model.KindTag

	if n > 0 {
		s.changed()
	}
	return n > 0, nil
}

// InsertWebhookSub stores a webhook-mode subscription. A zero sub.ID lets
// the database assign one; an existing ID is left untouched.
func (s *SQLite) InsertWebhookSub(ctx context.Context, sub *model.Subscription) (bool, error) {
	var id any
	if sub.ID != 0 {
		id = sub.ID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (id, kind, tag_id, company, notify_webhook)
		 VALUES (?, ?, ?, ?, ?)`,
		id, string(sub.Kind), nullInt(sub.TagID), nullString(sub.Company), nullString(sub.Webhook),
	)
	if err != nil {
		return false, fmt.Errorf("insert webhook subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if sub.ID == 0 {
		if sub.ID, err = res.LastInsertId(); err != nil {
			return false, fmt.Errorf("last insert id: %w", err)
		}
	}
	s.changed()
	return true, nil
}

// DeleteUserSub removes one channel tag subscription and reports whether it existed.
func (s *SQLite) DeleteUserSub(ctx context.Context, sub model.Subscription) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions
		 WHERE kind = 'tag' AND tag_id = ? AND guild_id = ? AND channel_id = ? AND user_id = ?`,
		sub.TagID, sub.GuildID, sub.ChannelID, sub.UserID,
	)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		s.changed()
	}
	return n > 0, nil
}

// DeleteAllUserSubs removes every tag subscription the user owns in the channel.
func (s *SQLite) DeleteAllUserSubs(ctx context.Context, guildID, channelID, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions
		 WHERE kind = 'tag' AND guild_id = ? AND channel_id = ? AND user_id = ?`,
		guildID, channelID, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		s.changed()
	}
	return n, nil
}

// ListUserSubs returns the user's tag subscriptions in the channel ordered by tag.
func (s *SQLite) ListUserSubs(ctx context.Context, guildID, channelID, userID string) ([]model.Subscription, error) {
	return s.querySubs(ctx,
		`SELECT `+subColumns+` FROM subscriptions
		 WHERE kind = 'tag' AND guild_id = ? AND channel_id = ? AND user_id = ?
		 ORDER BY tag_id`,
		guildID, channelID, userID,
	)
}

// ListChannelSubs returns every tag subscription of the channel ordered by tag.
func (s *SQLite) ListChannelSubs(ctx context.Context, channelID string) ([]model.Subscription, error) {
	return s.querySubs(ctx,
		`SELECT `+subColumns+` FROM subscriptions
		 WHERE kind = 'tag' AND channel_id = ?
		 ORDER BY tag_id, id`,
		channelID,
	)
}

// ListWebhookSubs returns the subscriptions that deliver to a webhook.
func (s *SQLite) ListWebhookSubs(ctx context.Context) ([]model.Subscription, error) {
	return s.querySubs(ctx,
		`SELECT `+subColumns+` FROM subscriptions
		 WHERE notify_webhook IS NOT NULL AND notify_webhook <> '' AND channel_id IS NULL
		 ORDER BY id`,
	)
}

// ListDistinctChannels returns every channel with at least one tag subscription.
func (s *SQLite) ListDistinctChannels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT channel_id FROM subscriptions
		 WHERE kind = 'tag' AND channel_id IS NOT NULL
		 ORDER BY channel_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkSeen records that a sale fingerprint was delivered for a subscription.
func (s *SQLite) MarkSeen(ctx context.Context, subID, appID int64, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_sales (sub_id, appid, sale_hash) VALUES (?, ?, ?)`,
		subID, appID, hash,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// IsSeen checks whether a sale fingerprint was already delivered for a subscription.
func (s *SQLite) IsSeen(ctx context.Context, subID, appID int64, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_sales WHERE sub_id = ? AND appid = ? AND sale_hash = ?`,
		subID, appID, hash,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

// MarkChannelSeen records that a sale fingerprint was delivered to a channel.
func (s *SQLite) MarkChannelSeen(ctx context.Context, channelID string, appID int64, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO channel_seen_sales (channel_id, appid, sale_hash) VALUES (?, ?, ?)`,
		channelID, appID, hash,
	)
	if err != nil {
		return fmt.Errorf("mark channel seen: %w", err)
	}
	return nil
}

// IsChannelSeen checks whether a sale fingerprint was already delivered to a channel.
func (s *SQLite) IsChannelSeen(ctx context.Context, channelID string, appID int64, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM channel_seen_sales WHERE channel_id = ? AND appid = ? AND sale_hash = ?`,
		channelID, appID, hash,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check channel seen: %w", err)
	}
	return count > 0, nil
}

// ClearChannelHistory forgets every delivered sale of the channel and of
// all its subscriptions, in one transaction.
func (s *SQLite) ClearChannelHistory(ctx context.Context, channelID string) (model.ClearResult, error) {
	return s.clearHistory(ctx, channelID,
		`DELETE FROM seen_sales
		 WHERE sub_id IN (SELECT id FROM subscriptions WHERE channel_id = ?)`,
		channelID,
	)
}

// ClearChannelHistoryForTag forgets the delivered sales of the channel's
// subscriptions to tagID. The channel-wide set has no tag and is cleared
// entirely.
func (s *SQLite) ClearChannelHistoryForTag(ctx context.Context, channelID string, tagID int64) (model.ClearResult, error) {
	return s.clearHistory(ctx, channelID,
		`DELETE FROM seen_sales
		 WHERE sub_id IN (SELECT id FROM subscriptions WHERE channel_id = ? AND kind = 'tag' AND tag_id = ?)`,
		channelID, tagID,
	)
}

func (s *SQLite) clearHistory(ctx context.Context, channelID, subQuery string, args ...any) (model.ClearResult, error) {
	var res model.ClearResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	r, err := tx.ExecContext(ctx, subQuery, args...)
	if err != nil {
		return res, fmt.Errorf("delete seen_sales: %w", err)
	}
	if res.SubCount, err = r.RowsAffected(); err != nil {
		return res, fmt.Errorf("rows affected: %w", err)
	}

	r, err = tx.ExecContext(ctx, `DELETE FROM channel_seen_sales WHERE channel_id = ?`, channelID)
	if err != nil {
		return res, fmt.Errorf("delete channel_seen_sales: %w", err)
	}
	if res.ChannelCount, err = r.RowsAffected(); err != nil {
		return res, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.ClearResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// GetChannelPreferences returns the channel's filters, or the defaults
// (everything passes) when none were saved.
func (s *SQLite) GetChannelPreferences(ctx context.Context, channelID string) (model.ChannelPreferences, error) {
	p, err := scanPrefs(s.db.QueryRowContext(ctx,
		`SELECT channel_id, min_discount, max_price, min_year, max_year, min_reviews
		 FROM channel_prefs WHERE channel_id = ?`, channelID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChannelPreferences{ChannelID: channelID}, nil
	}
	if err != nil {
		return model.ChannelPreferences{}, err
	}
	return p, nil
}

// UpdateChannelPreferences applies a partial update and returns the stored result.
// Fields absent from the patch keep their stored values.
func (s *SQLite) UpdateChannelPreferences(ctx context.Context, channelID string, patch model.PreferencesPatch) (model.ChannelPreferences, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ChannelPreferences{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanPrefs(tx.QueryRowContext(ctx,
		`SELECT channel_id, min_discount, max_price, min_year, max_year, min_reviews
		 FROM channel_prefs WHERE channel_id = ?`, channelID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		current = model.ChannelPreferences{ChannelID: channelID}
	} else if err != nil {
		return model.ChannelPreferences{}, err
	}

	next := patch.Apply(current)
	if err := upsertPrefs(ctx, tx, next); err != nil {
		return model.ChannelPreferences{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.ChannelPreferences{}, fmt.Errorf("commit: %w", err)
	}

	s.changed()
	return next, nil
}

// ExportState returns every subscription and channel preference row.
func (s *SQLite) ExportState(ctx context.Context) (State, error) {
	var st State
	var err error
	if st.Subscriptions, err = s.querySubs(ctx, `SELECT `+subColumns+` FROM subscriptions ORDER BY id`); err != nil {
		return State{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, min_discount, max_price, min_year, max_year, min_reviews
		 FROM channel_prefs ORDER BY channel_id`,
	)
	if err != nil {
		return State{}, fmt.Errorf("query channel_prefs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		p, err := scanPrefs(rows)
		if err != nil {
			return State{}, err
		}
		st.Preferences = append(st.Preferences, p)
	}
	return st, rows.Err()
}

// ImportState inserts or overwrites the given rows, keyed by subscription id
// and channel id. Rows absent from st are kept.
func (s *SQLite) ImportState(ctx context.Context, st State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, sub := range st.Subscriptions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO subscriptions (`+subColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   kind = excluded.kind, tag_id = excluded.tag_id, company = excluded.company,
			   notify_webhook = excluded.notify_webhook, guild_id = excluded.guild_id,
			   channel_id = excluded.channel_id, user_id = excluded.user_id
			 ON CONFLICT DO NOTHING`,
			sub.ID, string(sub.Kind), nullInt(sub.TagID), nullString(sub.Company), nullString(sub.Webhook),
			nullString(sub.GuildID), nullString(sub.ChannelID), nullString(sub.UserID),
		)
		if err != nil {
			return fmt.Errorf("restore subscription %d: %w", sub.ID, err)
		}
	}
	for _, p := range st.Preferences {
		if err := upsertPrefs(ctx, tx, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertPrefs(ctx context.Context, e execer, p model.ChannelPreferences) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO channel_prefs (channel_id, min_discount, max_price, min_year, max_year, min_reviews)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET
		   min_discount = excluded.min_discount, max_price = excluded.max_price,
		   min_year = excluded.min_year, max_year = excluded.max_year,
		   min_reviews = excluded.min_reviews`,
		p.ChannelID, p.MinDiscount, p.MaxPrice, p.MinYear, p.MaxYear, p.MinReviews,
	)
	if err != nil {
		return fmt.Errorf("upsert channel_prefs: %w", err)
	}
	return nil
}

func (s *SQLite) querySubs(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSub(row scannable) (model.Subscription, error) {
	var sub model.Subscription
	var kind string
	var tagID sql.NullInt64
	var company, webhook, guild, channel, user sql.NullString
	if err := row.Scan(&sub.ID, &kind, &tagID, &company, &webhook, &guild, &channel, &user); err != nil {
		return sub, fmt.Errorf("scan subscription: %w", err)
	}
	sub.Kind = model.SubscriptionKind(kind)
	sub.TagID = tagID.Int64
	sub.Company = company.String
	sub.Webhook = webhook.String
	sub.GuildID = guild.String
	sub.ChannelID = channel.String
	sub.UserID = user.String
	return sub, nil
}

func scanPrefs(row scannable) (model.ChannelPreferences, error) {
	var p model.ChannelPreferences
	var maxPrice sql.NullFloat64
	var minYear, maxYear sql.NullInt64
	err := row.Scan(&p.ChannelID, &p.MinDiscount, &maxPrice, &minYear, &maxYear, &p.MinReviews)
	if errors.Is(err, sql.ErrNoRows) {
		return p, err
	}
	if err != nil {
		return p, fmt.Errorf("scan channel_prefs: %w", err)
	}
	if maxPrice.Valid {
		p.MaxPrice = &maxPrice.Float64
	}
	if minYear.Valid {
		v := int(minYear.Int64)
		p.MinYear = &v
	}
	if maxYear.Valid {
		v := int(maxYear.Int64)
		p.MaxYear = &v
	}
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
