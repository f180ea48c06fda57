package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/madofuller/discordscraper/internal/models"
)

var ErrNotFound = errors.New("not found")

var messageColumns = []string{
	"message_id", "channel_id", "user_id", "content", "timestamp",
	"edited_timestamp", "deleted", "deleted_at", "message_type", "mentions",
	"attachments", "embeds", "reactions", "reference_message_id",
}

func messageColumnList(prefix string) string {
	if prefix == "" {
		return strings.Join(messageColumns, ", ")
	}
	cols := make([]string, len(messageColumns))
	for i, c := range messageColumns {
		cols[i] = prefix + "." + c
	}
	return strings.Join(cols, ", ")
}

// MessageFilter narrows a message listing. Zero values mean "no filter";
// soft-deleted rows are excluded unless IncludeDeleted is set.
type MessageFilter struct {
	ChannelID      int64
	SubnetName     string
	AuthorID       int64
	Before         *time.Time
	After          *time.Time
	Search         string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// buildMessageQuery assembles the filtered listing. Split out so the SQL
// assembly is testable without a database.
func buildMessageQuery(f MessageFilter) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)

	b.WriteString("SELECT " + messageColumnList("m") + " FROM messages m")
	if f.SubnetName != "" {
		b.WriteString(" JOIN channels c ON c.channel_id = m.channel_id")
		b.WriteString(" JOIN subnets s ON s.id = c.subnet_id")
	}

	var conds []string
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ChannelID != 0 {
		add("m.channel_id = $%d", f.ChannelID)
	}
	if f.SubnetName != "" {
		add("s.name = $%d", f.SubnetName)
	}
	if f.AuthorID != 0 {
		add("m.user_id = $%d", f.AuthorID)
	}
	if f.After != nil {
		add("m.timestamp > $%d", *f.After)
	}
	if f.Before != nil {
		add("m.timestamp < $%d", *f.Before)
	}
	if f.Search != "" {
		add("m.content ILIKE $%d", "%"+f.Search+"%")
	}
	if !f.IncludeDeleted {
		conds = append(conds, "m.deleted = FALSE")
	}

	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	// ordering is by the explicit timestamp, never by snowflake
	b.WriteString(" ORDER BY m.timestamp DESC")

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)
	b.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		b.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	return b.String(), args
}

func (s *Store) Messages(ctx context.Context, f MessageFilter) ([]models.Message, error) {
	sql, args := buildMessageQuery(f)

	rows, err := s.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Message fetches one row by snowflake, including soft-deleted rows.
func (s *Store) Message(ctx context.Context, messageID int64) (*models.Message, error) {
	row := s.db.Pool.QueryRow(ctx,
		`SELECT `+messageColumnList("")+` FROM messages WHERE message_id = $1`,
		messageID,
	)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMessage(row pgx.Row) (models.Message, error) {
	var m models.Message
	err := row.Scan(
		&m.MessageID, &m.ChannelID, &m.UserID, &m.Content, &m.Timestamp,
		&m.EditedTimestamp, &m.Deleted, &m.DeletedAt, &m.MessageType, &m.Mentions,
		&m.Attachments, &m.Embeds, &m.Reactions, &m.ReferenceMessageID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return m, err
		}
		return m, fmt.Errorf("scan message: %w", err)
	}
	return m, nil
}

// ChannelStats lists every channel with its message count and latest
// message timestamp, for the API channel listing.
func (s *Store) ChannelStats(ctx context.Context) ([]models.ChannelStats, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT c.channel_id, c.name,
		        COUNT(m.message_id) AS message_count,
		        MAX(m.timestamp) AS last_message_timestamp
		 FROM channels c
		 LEFT JOIN messages m ON m.channel_id = c.channel_id AND m.deleted = FALSE
		 GROUP BY c.channel_id, c.name
		 ORDER BY c.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query channel stats: %w", err)
	}
	defer rows.Close()

	var out []models.ChannelStats
	for rows.Next() {
		var cs models.ChannelStats
		if err := rows.Scan(&cs.ChannelID, &cs.ChannelName, &cs.MessageCount, &cs.LastMessageTimestamp); err != nil {
			return nil, fmt.Errorf("scan channel stats: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *Store) Subnets(ctx context.Context) ([]models.Subnet, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, name, description, tags, created_at, updated_at
		 FROM subnets ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subnets: %w", err)
	}
	defer rows.Close()

	var out []models.Subnet
	for rows.Next() {
		var sn models.Subnet
		if err := rows.Scan(&sn.ID, &sn.Name, &sn.Description, &sn.Tags, &sn.CreatedAt, &sn.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subnet: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// BackfillJobs lists jobs, optionally narrowed by channel and status.
func (s *Store) BackfillJobs(ctx context.Context, channelID int64, status string) ([]models.BackfillJob, error) {
	var (
		conds []string
		args  []any
	)
	if channelID != 0 {
		args = append(args, channelID)
		conds = append(conds, fmt.Sprintf("channel_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	sql := `SELECT id, channel_id, start_time, end_time, status, messages_imported, error_message, created_at
	        FROM backfill_jobs`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY created_at DESC"

	rows, err := s.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query backfill jobs: %w", err)
	}
	defer rows.Close()

	var out []models.BackfillJob
	for rows.Next() {
		var j models.BackfillJob
		if err := rows.Scan(&j.ID, &j.ChannelID, &j.StartTime, &j.EndTime, &j.Status, &j.MessagesImported, &j.ErrorMessage, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan backfill job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
