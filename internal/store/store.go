// Package store is the persistence layer over Postgres. All writes are
// idempotent: parent entities upsert by primary key, messages insert-or-
// skip on their snowflake, so any import can be re-run safely.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/madofuller/discordscraper/internal/db"
	"github.com/madofuller/discordscraper/internal/models"
)

type Store struct {
	log *slog.Logger
	db  *db.DB
}

func New(log *slog.Logger, dbConn *db.DB) *Store {
	return &Store{log: log, db: dbConn}
}

// UpsertServer creates or refreshes a server row. Mutable fields are
// last-write-wins on every sighting.
func (s *Store) UpsertServer(ctx context.Context, serverID int64, name string, iconURL *string) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO servers (server_id, name, icon_url)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (server_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   icon_url = EXCLUDED.icon_url,
		   updated_at = NOW()`,
		serverID, name, iconURL,
	)
	if err != nil {
		return fmt.Errorf("upsert server %d: %w", serverID, err)
	}
	return nil
}

// ChannelParams carries the mutable channel attributes seen in an export.
type ChannelParams struct {
	ChannelID int64
	ServerID  int64
	Name      string
	SubnetID  *int64
	Topic     *string
	Category  *string
	Position  *int
}

func (s *Store) UpsertChannel(ctx context.Context, p ChannelParams) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO channels (channel_id, server_id, subnet_id, name, topic, category, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (channel_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   subnet_id = COALESCE(EXCLUDED.subnet_id, channels.subnet_id),
		   topic = EXCLUDED.topic,
		   category = EXCLUDED.category,
		   position = EXCLUDED.position,
		   updated_at = NOW()`,
		p.ChannelID, p.ServerID, p.SubnetID, p.Name, p.Topic, p.Category, p.Position,
	)
	if err != nil {
		return fmt.Errorf("upsert channel %d: %w", p.ChannelID, err)
	}
	return nil
}

// UserParams carries author metadata as seen inline on a message.
type UserParams struct {
	UserID        int64
	Username      string
	Discriminator *string
	DisplayName   *string
	AvatarURL     *string
	Bot           bool
}

func (s *Store) UpsertUser(ctx context.Context, p UserParams) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO users (user_id, username, discriminator, display_name, avatar_url, bot)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		   username = EXCLUDED.username,
		   discriminator = EXCLUDED.discriminator,
		   display_name = EXCLUDED.display_name,
		   avatar_url = EXCLUDED.avatar_url,
		   bot = EXCLUDED.bot,
		   updated_at = NOW()`,
		p.UserID, p.Username, p.Discriminator, p.DisplayName, p.AvatarURL, p.Bot,
	)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", p.UserID, err)
	}
	return nil
}

// UpsertSubnet creates or refreshes a subnet tag by name and returns its id.
func (s *Store) UpsertSubnet(ctx context.Context, name string, description *string, tags []string) (int64, error) {
	var id int64
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO subnets (name, description, tags)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET
		   description = COALESCE(EXCLUDED.description, subnets.description),
		   tags = COALESCE(EXCLUDED.tags, subnets.tags),
		   updated_at = NOW()
		 RETURNING id`,
		name, description, tags,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert subnet %q: %w", name, err)
	}
	return id, nil
}

// LinkChannelSubnet attaches a channel to a subnet by name. Returns false
// when either side does not exist.
func (s *Store) LinkChannelSubnet(ctx context.Context, channelID int64, subnetName string) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE channels
		 SET subnet_id = sub.id, updated_at = NOW()
		 FROM (SELECT id FROM subnets WHERE name = $2) AS sub
		 WHERE channel_id = $1`,
		channelID, subnetName,
	)
	if err != nil {
		return false, fmt.Errorf("link channel %d to subnet %q: %w", channelID, subnetName, err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertMessage attempts the insert and treats a conflict on the message
// snowflake as the normal already-imported case: no error, inserted=false,
// existing row untouched. This single property makes the whole pipeline
// safe to re-run and safe under concurrent imports of overlapping files.
func (s *Store) InsertMessage(ctx context.Context, m *models.Message) (inserted bool, err error) {
	tag, err := s.db.Pool.Exec(ctx,
		`INSERT INTO messages
		   (message_id, channel_id, user_id, content, timestamp, edited_timestamp,
		    message_type, mentions, attachments, embeds, reactions, reference_message_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (message_id) DO NOTHING`,
		m.MessageID, m.ChannelID, m.UserID, m.Content, m.Timestamp, m.EditedTimestamp,
		m.MessageType, m.Mentions, nullableJSON(m.Attachments), nullableJSON(m.Embeds),
		nullableJSON(m.Reactions), m.ReferenceMessageID,
	)
	if err != nil {
		return false, fmt.Errorf("insert message %d: %w", m.MessageID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateMessage applies an edit to an already-stored row. Unset fields
// keep their stored value. Returns found=false for unknown ids.
func (s *Store) UpdateMessage(ctx context.Context, messageID int64, content *string, editedAt *time.Time) (found bool, err error) {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE messages SET
		   content = COALESCE($2, content),
		   edited_timestamp = COALESCE($3, edited_timestamp),
		   updated_at = NOW()
		 WHERE message_id = $1`,
		messageID, content, editedAt,
	)
	if err != nil {
		return false, fmt.Errorf("update message %d: %w", messageID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkDeleted flips the soft-delete flag; the row stays queryable. A
// repeat call re-applies the flag, which is harmless.
func (s *Store) MarkDeleted(ctx context.Context, messageID int64) (found bool, err error) {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE messages SET deleted = TRUE, deleted_at = NOW(), updated_at = NOW()
		 WHERE message_id = $1`,
		messageID,
	)
	if err != nil {
		return false, fmt.Errorf("mark message %d deleted: %w", messageID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateBackfillJob opens a pending job for one import attempt.
func (s *Store) CreateBackfillJob(ctx context.Context, channelID int64) (int64, error) {
	var id int64
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO backfill_jobs (channel_id, start_time, status)
		 VALUES ($1, NOW(), $2)
		 RETURNING id`,
		channelID, models.JobPending,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create backfill job for channel %d: %w", channelID, err)
	}
	return id, nil
}

func (s *Store) StartBackfillJob(ctx context.Context, jobID int64) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE backfill_jobs SET status = $2, updated_at = NOW() WHERE id = $1`,
		jobID, models.JobRunning,
	)
	if err != nil {
		return fmt.Errorf("start backfill job %d: %w", jobID, err)
	}
	return nil
}

// FinishBackfillJob finalizes a job with its terminal status and counts.
func (s *Store) FinishBackfillJob(ctx context.Context, jobID int64, status string, imported int, errMsg *string) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE backfill_jobs SET
		   status = $2,
		   messages_imported = $3,
		   error_message = $4,
		   end_time = NOW(),
		   updated_at = NOW()
		 WHERE id = $1`,
		jobID, status, imported, errMsg,
	)
	if err != nil {
		return fmt.Errorf("finish backfill job %d: %w", jobID, err)
	}
	return nil
}

// nullableJSON maps an absent blob to SQL NULL instead of an empty value.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
