// Package store persists user profiles, monitored chats, group membership,
// timezone overrides and analytics events in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/hseinmoussa/tzbuddy/internal/engine"
)

// Event names written by the store itself.
const (
	EventTimezoneSet      = "user_timezone_set"
	EventTimezoneCleared  = "user_timezone_cleared"
	EventUserDeleted      = "user_data_deleted"
	EventMonitorEnabled   = "telegram_monitor_enabled"
	EventMonitorDisabled  = "telegram_monitor_disabled"
	EventOverrideSet      = "telegram_timezone_override_set"
	EventOverrideCleared  = "telegram_timezone_override_cleared"
	EventChannelMonitored = "discord_channel_monitored"
	EventChannelReleased  = "discord_channel_unmonitored"
)

// OverrideMode is how an admin override changes a group's active zones.
type OverrideMode string

const (
	OverrideAdd    OverrideMode = "add"
	OverrideRemove OverrideMode = "remove"
)

// ErrInvalidMode is returned for an override mode other than add/remove.
var ErrInvalidMode = errors.New("override mode must be add or remove")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS user_profiles (
		platform   TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		timezone   TEXT NULL,
		dm_enabled INTEGER NOT NULL DEFAULT 0,
		muted      INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (platform, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS discord_monitored_channels (
		guild_id   TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (guild_id, channel_id)
	)`,
	`CREATE TABLE IF NOT EXISTS telegram_group_config (
		chat_id            TEXT NOT NULL PRIMARY KEY,
		monitoring_enabled INTEGER NOT NULL DEFAULT 0,
		updated_at         INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS telegram_group_members (
		chat_id      TEXT NOT NULL,
		user_id      TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		PRIMARY KEY (chat_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS telegram_timezone_overrides (
		chat_id    TEXT NOT NULL,
		timezone   TEXT NOT NULL,
		mode       TEXT NOT NULL CHECK (mode IN ('add', 'remove')),
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (chat_id, timezone)
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		ts            INTEGER NOT NULL,
		platform      TEXT NOT NULL,
		event_name    TEXT NOT NULL,
		scope_id      TEXT NULL,
		channel_id    TEXT NULL,
		user_id       TEXT NULL,
		metadata_json TEXT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_name_ts ON events (event_name, ts)`,
}

// Store is a SQLite-backed engine.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ engine.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory for %s", path)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", path)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to apply schema")
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ts() int64 { return s.now().Unix() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ── user profiles ──

// SetUserTimezone stores tz for the user, creating the profile if needed.
// The caller validates tz.
func (s *Store) SetUserTimezone(ctx context.Context, platform engine.Platform, userID, tz string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (platform, user_id, timezone, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (platform, user_id)
		DO UPDATE SET timezone = excluded.timezone, updated_at = excluded.updated_at`,
		string(platform), userID, tz, s.ts())
	if err != nil {
		return errors.Wrap(err, "failed to set user timezone")
	}
	return s.LogEvent(ctx, engine.Event{
		Platform: platform,
		Name:     EventTimezoneSet,
		UserID:   userID,
		Metadata: map[string]any{"timezone": tz},
	})
}

// UserTimezone returns the stored zone, or "" when none is set.
func (s *Store) UserTimezone(ctx context.Context, platform engine.Platform, userID string) (string, error) {
	var tz sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT timezone FROM user_profiles WHERE platform = ? AND user_id = ?`,
		string(platform), userID).Scan(&tz)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to get user timezone")
	}
	return tz.String, nil
}

// ClearUserTimezone removes the stored zone but keeps the other settings.
func (s *Store) ClearUserTimezone(ctx context.Context, platform engine.Platform, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_profiles SET timezone = NULL, updated_at = ? WHERE platform = ? AND user_id = ?`,
		s.ts(), string(platform), userID)
	if err != nil {
		return errors.Wrap(err, "failed to clear user timezone")
	}
	return s.LogEvent(ctx, engine.Event{Platform: platform, Name: EventTimezoneCleared, UserID: userID})
}

// SetMuted toggles all bot replies for the user.
func (s *Store) SetMuted(ctx context.Context, platform engine.Platform, userID string, muted bool) error {
	return s.setFlag(ctx, "muted", platform, userID, muted)
}

// SetDMEnabled toggles private conversions for the user.
func (s *Store) SetDMEnabled(ctx context.Context, platform engine.Platform, userID string, enabled bool) error {
	return s.setFlag(ctx, "dm_enabled", platform, userID, enabled)
}

// setFlag upserts one boolean column; column is never user input.
func (s *Store) setFlag(ctx context.Context, column string, platform engine.Platform, userID string, v bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (platform, user_id, `+column+`, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (platform, user_id)
		DO UPDATE SET `+column+` = excluded.`+column+`, updated_at = excluded.updated_at`,
		string(platform), userID, boolInt(v), s.ts())
	if err != nil {
		return errors.Wrapf(err, "failed to set %s", column)
	}
	return nil
}

// UserSettings returns the user's switches; unknown users get the defaults
// (not muted, DMs off).
func (s *Store) UserSettings(ctx context.Context, platform engine.Platform, userID string) (engine.Settings, error) {
	var muted, dm int
	err := s.db.QueryRowContext(ctx,
		`SELECT muted, dm_enabled FROM user_profiles WHERE platform = ? AND user_id = ?`,
		string(platform), userID).Scan(&muted, &dm)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Settings{}, nil
	}
	if err != nil {
		return engine.Settings{}, errors.Wrap(err, "failed to get user settings")
	}
	return engine.Settings{Muted: muted != 0, DMEnabled: dm != 0}, nil
}

// DeleteUser removes the profile and, for Telegram, every group membership.
func (s *Store) DeleteUser(ctx context.Context, platform engine.Platform, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_profiles WHERE platform = ? AND user_id = ?`, string(platform), userID); err != nil {
		return errors.Wrap(err, "failed to delete user profile")
	}
	if platform == engine.Telegram {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM telegram_group_members WHERE user_id = ?`, userID); err != nil {
			return errors.Wrap(err, "failed to delete group memberships")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit user deletion")
	}
	return s.LogEvent(ctx, engine.Event{Platform: platform, Name: EventUserDeleted, UserID: userID})
}

// ── discord channels ──

// AddChannel starts monitoring a guild channel.
func (s *Store) AddChannel(ctx context.Context, guildID, channelID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discord_monitored_channels (guild_id, channel_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (guild_id, channel_id) DO NOTHING`,
		guildID, channelID, s.ts())
	if err != nil {
		return errors.Wrap(err, "failed to add monitored channel")
	}
	return s.LogEvent(ctx, engine.Event{Platform: engine.Discord, Name: EventChannelMonitored, ScopeID: guildID, ChannelID: channelID})
}

// RemoveChannel stops monitoring a guild channel.
func (s *Store) RemoveChannel(ctx context.Context, guildID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM discord_monitored_channels WHERE guild_id = ? AND channel_id = ?`, guildID, channelID)
	if err != nil {
		return errors.Wrap(err, "failed to remove monitored channel")
	}
	return s.LogEvent(ctx, engine.Event{Platform: engine.Discord, Name: EventChannelReleased, ScopeID: guildID, ChannelID: channelID})
}

// ListChannels returns a guild's monitored channel ids, sorted.
func (s *Store) ListChannels(ctx context.Context, guildID string) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT channel_id FROM discord_monitored_channels WHERE guild_id = ? ORDER BY channel_id`, guildID)
}

// ChannelMonitored reports whether the channel is monitored.
func (s *Store) ChannelMonitored(ctx context.Context, guildID, channelID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM discord_monitored_channels WHERE guild_id = ? AND channel_id = ?`,
		guildID, channelID).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "failed to check monitored channel")
	}
	return n > 0, nil
}

// ── telegram groups ──

// SetMonitoring turns public replies on or off for a group.
func (s *Store) SetMonitoring(ctx context.Context, chatID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO telegram_group_config (chat_id, monitoring_enabled, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (chat_id)
		DO UPDATE SET monitoring_enabled = excluded.monitoring_enabled, updated_at = excluded.updated_at`,
		chatID, boolInt(enabled), s.ts())
	if err != nil {
		return errors.Wrap(err, "failed to set monitoring")
	}
	name := EventMonitorDisabled
	if enabled {
		name = EventMonitorEnabled
	}
	return s.LogEvent(ctx, engine.Event{Platform: engine.Telegram, Name: name, ScopeID: chatID})
}

// MonitoringEnabled reports whether the group gets public replies. Groups
// are off until enabled.
func (s *Store) MonitoringEnabled(ctx context.Context, chatID string) (bool, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT monitoring_enabled FROM telegram_group_config WHERE chat_id = ?`, chatID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to get monitoring")
	}
	return v != 0, nil
}

// TouchMember records that userID was seen in chatID.
func (s *Store) TouchMember(ctx context.Context, chatID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO telegram_group_members (chat_id, user_id, last_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET last_seen_at = excluded.last_seen_at`,
		chatID, userID, s.ts())
	if err != nil {
		return errors.Wrap(err, "failed to touch member")
	}
	return nil
}

// RemoveMember forgets a member, e.g. after they left the group.
func (s *Store) RemoveMember(ctx context.Context, chatID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM telegram_group_members WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return errors.Wrap(err, "failed to remove member")
	}
	return nil
}

// ListMembers returns the group's known member ids, sorted.
func (s *Store) ListMembers(ctx context.Context, chatID string) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT user_id FROM telegram_group_members WHERE chat_id = ? ORDER BY user_id`, chatID)
}

// SetOverride forces tz into (add) or out of (remove) the group's active set.
func (s *Store) SetOverride(ctx context.Context, chatID, tz string, mode OverrideMode) error {
	if mode != OverrideAdd && mode != OverrideRemove {
		return errors.Wrapf(ErrInvalidMode, "mode %q", mode)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO telegram_timezone_overrides (chat_id, timezone, mode, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chat_id, timezone)
		DO UPDATE SET mode = excluded.mode, updated_at = excluded.updated_at`,
		chatID, tz, string(mode), s.ts())
	if err != nil {
		return errors.Wrap(err, "failed to set timezone override")
	}
	return s.LogEvent(ctx, engine.Event{
		Platform: engine.Telegram,
		Name:     EventOverrideSet,
		ScopeID:  chatID,
		Metadata: map[string]any{"timezone": tz, "mode": string(mode)},
	})
}

// ClearOverride drops the override for tz.
func (s *Store) ClearOverride(ctx context.Context, chatID, tz string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM telegram_timezone_overrides WHERE chat_id = ? AND timezone = ?`, chatID, tz)
	if err != nil {
		return errors.Wrap(err, "failed to clear timezone override")
	}
	return s.LogEvent(ctx, engine.Event{
		Platform: engine.Telegram,
		Name:     EventOverrideCleared,
		ScopeID:  chatID,
		Metadata: map[string]any{"timezone": tz},
	})
}

// ListOverrides returns the group's overrides keyed by zone.
func (s *Store) ListOverrides(ctx context.Context, chatID string) (map[string]OverrideMode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timezone, mode FROM telegram_timezone_overrides WHERE chat_id = ?`, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list timezone overrides")
	}
	defer rows.Close()

	out := map[string]OverrideMode{}
	for rows.Next() {
		var tz, mode string
		if err := rows.Scan(&tz, &mode); err != nil {
			return nil, errors.Wrap(err, "failed to scan timezone override")
		}
		out[tz] = OverrideMode(mode)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate timezone overrides")
}

// ActiveTimezones is (distinct member zones ∪ added) − removed, sorted.
func (s *Store) ActiveTimezones(ctx context.Context, chatID string) ([]string, error) {
	base, err := s.queryStrings(ctx, `
		SELECT DISTINCT up.timezone
		FROM telegram_group_members gm
		JOIN user_profiles up ON up.platform = 'telegram' AND up.user_id = gm.user_id
		WHERE gm.chat_id = ? AND up.timezone IS NOT NULL AND up.timezone != ''`, chatID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.ListOverrides(ctx, chatID)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(base)+len(overrides))
	for _, tz := range base {
		set[tz] = true
	}
	for tz, mode := range overrides {
		if mode == OverrideAdd {
			set[tz] = true
		}
	}
	for tz, mode := range overrides {
		if mode == OverrideRemove {
			delete(set, tz)
		}
	}

	out := make([]string, 0, len(set))
	for tz := range set {
		out = append(out, tz)
	}
	sort.Strings(out)
	return out, nil
}

// ── events ──

// LogEvent appends an analytics row. Metadata is stored as JSON.
func (s *Store) LogEvent(ctx context.Context, ev engine.Event) error {
	var meta sql.NullString
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return errors.Wrap(err, "failed to encode event metadata")
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (ts, platform, event_name, scope_id, channel_id, user_id, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ts(), string(ev.Platform), ev.Name, nullable(ev.ScopeID), nullable(ev.ChannelID), nullable(ev.UserID), meta)
	if err != nil {
		return errors.Wrap(err, "failed to log event")
	}
	return nil
}

// EventRow is a stored event.
type EventRow struct {
	ID        int64
	Time      time.Time
	Platform  string
	Name      string
	ScopeID   string
	ChannelID string
	UserID    string
	Metadata  map[string]any
}

// EventFilter narrows ListEvents. Zero fields match everything.
type EventFilter struct {
	Name     string
	Platform string
	Limit    int
}

// ListEvents returns the most recent events first.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]EventRow, error) {
	where, args := []string{"1 = 1"}, []any{}
	if f.Name != "" {
		where, args = append(where, "event_name = ?"), append(args, f.Name)
	}
	if f.Platform != "" {
		where, args = append(where, "platform = ?"), append(args, f.Platform)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, platform, event_name, scope_id, channel_id, user_id, metadata_json
		FROM events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY ts DESC, id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events")
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var (
			r                       EventRow
			ts                      int64
			scope, channel, user, m sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &r.Platform, &r.Name, &scope, &channel, &user, &m); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		r.Time = time.Unix(ts, 0)
		r.ScopeID, r.ChannelID, r.UserID = scope.String, channel.String, user.String
		if m.Valid {
			if err := json.Unmarshal([]byte(m.String), &r.Metadata); err != nil {
				return nil, errors.Wrapf(err, "failed to decode metadata of event %d", r.ID)
			}
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate events")
}

// PruneEvents deletes events older than before and returns how many went.
func (s *Store) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE ts < ?`, before.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune events")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "failed to count pruned events")
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "failed to scan")
		}
		out = append(out, v)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate rows")
}
