package interactions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/glados/internal/db"
	"github.com/ziadkadry99/glados/internal/response"
)

// Store persists interactions. All reads and writes go through a Session.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// NewSession opens a scoped session. The caller owns it and must Close it.
func (s *Store) NewSession(ctx context.Context) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInactive, err)
	}
	return &Session{tx: tx, rebind: s.db.Rebind}, nil
}

const selectColumns = `SELECT interaction_id, ts, bot, data, message_channel, message_ts, ttl,
	followup_ts, followup_action, followed_up_ts FROM interactions`

// Insert stores a new interaction. An empty ID is replaced by a UUID and a
// zero CreatedAt by the current time; both are written back to it.
func (s *Store) Insert(ctx context.Context, sess *Session, it *Interaction) error {
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = s.now()
	}
	if it.Data == nil {
		it.Data = map[string]any{}
	}

	data, err := json.Marshal(it.Data)
	if err != nil {
		return fmt.Errorf("marshalling interaction data: %w", err)
	}

	_, err = sess.exec(ctx, `
		INSERT INTO interactions (interaction_id, ts, bot, data, message_channel, message_ts, ttl,
			followup_ts, followup_action, followed_up_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, formatTime(it.CreatedAt), it.Bot, string(data),
		nullString(it.MessageChannel), nullString(it.MessageTS), nullInt(it.TTL),
		nullTime(it.FollowupAt), nullString(it.FollowupAction), nullTime(it.FollowedUpAt),
	)
	if err != nil {
		return fmt.Errorf("inserting interaction: %w", err)
	}
	return nil
}

// FindByID retrieves a single interaction.
func (s *Store) FindByID(ctx context.Context, sess *Session, id string) (*Interaction, error) {
	found, err := s.list(ctx, sess, selectColumns+" WHERE interaction_id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &found[0], nil
}

// FindByChannelAndTimestamp returns the interaction linked to a message.
// No match yields nil without error; more than one match is ErrConsistency.
func (s *Store) FindByChannelAndTimestamp(ctx context.Context, sess *Session, channel, ts string) (*Interaction, error) {
	found, err := s.list(ctx, sess,
		selectColumns+" WHERE message_channel = ? AND message_ts = ?", channel, ts)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("%w: %d interactions match channel %s and ts %s",
			ErrConsistency, len(found), channel, ts)
	}
}

// updatable maps accepted field names to their column.
var updatable = map[string]string{
	"bot":             "bot",
	"data":            "data",
	"message_channel": "message_channel",
	"message_ts":      "message_ts",
	"ttl":             "ttl",
	"followup_action": "followup_action",
	"followup_ts":     "followup_ts",
	"followup_at":     "followup_ts",
	"followed_up_ts":  "followed_up_ts",
	"followed_up_at":  "followed_up_ts",
}

// UpdateFields sets the given fields on an existing interaction. Field names
// that are not part of the schema are ignored.
func (s *Store) UpdateFields(ctx context.Context, sess *Session, id string, fields map[string]any) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if _, ok := updatable[k]; ok {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		v, err := columnValue(k, fields[k])
		if err != nil {
			return err
		}
		sets = append(sets, updatable[k]+" = ?")
		args = append(args, v)
	}
	args = append(args, id)

	res, err := sess.exec(ctx,
		"UPDATE interactions SET "+strings.Join(sets, ", ")+" WHERE interaction_id = ?", args...)
	if err != nil {
		return fmt.Errorf("updating interaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// LinkToMessage attaches an interaction to a message.
func (s *Store) LinkToMessage(ctx context.Context, sess *Session, id, channel, ts string) error {
	return s.UpdateFields(ctx, sess, id, map[string]any{
		"message_channel": channel,
		"message_ts":      ts,
	})
}

// LinkToMessageResponse attaches an interaction to the message described by
// a send-message acknowledgement.
func (s *Store) LinkToMessageResponse(ctx context.Context, sess *Session, id string, ack response.Response) error {
	channel, ts, ok := ack.MessageRef()
	if !ok {
		return fmt.Errorf("response carries no channel and ts: %v", ack.Wire())
	}
	return s.LinkToMessage(ctx, sess, id, channel, ts)
}

// DueFollowups lists interactions whose follow-up time has passed and that
// have not been followed up yet, oldest first.
func (s *Store) DueFollowups(ctx context.Context, sess *Session, now time.Time) ([]Interaction, error) {
	return s.list(ctx, sess, selectColumns+`
		WHERE followup_ts IS NOT NULL AND followup_ts <= ?
		AND followed_up_ts IS NULL AND followup_action IS NOT NULL
		ORDER BY followup_ts`, formatTime(now))
}

// MarkFollowedUp records that the follow-up for an interaction ran at.
func (s *Store) MarkFollowedUp(ctx context.Context, sess *Session, id string, at time.Time) error {
	return s.UpdateFields(ctx, sess, id, map[string]any{"followed_up_ts": at})
}

// DeleteExpired removes interactions whose TTL has elapsed and returns how
// many were removed.
func (s *Store) DeleteExpired(ctx context.Context, sess *Session, now time.Time) (int, error) {
	candidates, err := s.list(ctx, sess, selectColumns+" WHERE ttl IS NOT NULL")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, it := range candidates {
		if !it.Expired(now) {
			continue
		}
		if _, err := sess.exec(ctx, "DELETE FROM interactions WHERE interaction_id = ?", it.ID); err != nil {
			return removed, fmt.Errorf("deleting interaction %s: %w", it.ID, err)
		}
		removed++
	}
	return removed, nil
}

func (s *Store) list(ctx context.Context, sess *Session, query string, args ...any) ([]Interaction, error) {
	rows, err := sess.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	defer rows.Close()

	var result []Interaction
	for rows.Next() {
		it, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *it)
	}
	return result, rows.Err()
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInteraction(sc scanner) (*Interaction, error) {
	var (
		it                       Interaction
		created, data            string
		channel, ts, action      sql.NullString
		followupAt, followedUpAt sql.NullString
		ttl                      sql.NullInt64
	)

	if err := sc.Scan(&it.ID, &created, &it.Bot, &data, &channel, &ts, &ttl,
		&followupAt, &action, &followedUpAt); err != nil {
		return nil, fmt.Errorf("scanning interaction: %w", err)
	}

	if t, err := parseTime(created); err == nil {
		it.CreatedAt = t
	}
	it.MessageChannel = channel.String
	it.MessageTS = ts.String
	it.FollowupAction = action.String
	if ttl.Valid {
		v := int(ttl.Int64)
		it.TTL = &v
	}
	if followupAt.Valid {
		if t, err := parseTime(followupAt.String); err == nil {
			it.FollowupAt = &t
		}
	}
	if followedUpAt.Valid {
		if t, err := parseTime(followedUpAt.String); err == nil {
			it.FollowedUpAt = &t
		}
	}
	if err := json.Unmarshal([]byte(data), &it.Data); err != nil || it.Data == nil {
		it.Data = map[string]any{}
	}

	return &it, nil
}

func columnValue(field string, v any) (any, error) {
	switch updatable[field] {
	case "data":
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshalling interaction data: %w", err)
		}
		return string(b), nil
	case "ttl":
		switch n := v.(type) {
		case nil:
			return nil, nil
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case *int:
			return nullInt(n), nil
		}
	case "followup_ts", "followed_up_ts":
		switch t := v.(type) {
		case nil:
			return nil, nil
		case time.Time:
			return formatTime(t), nil
		case *time.Time:
			return nullTime(t), nil
		}
	default:
		switch s := v.(type) {
		case nil:
			return nil, nil
		case string:
			return nullString(s), nil
		}
	}
	return nil, fmt.Errorf("field %s: unsupported value type %T", field, v)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
