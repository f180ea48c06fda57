package models

import (
	"encoding/json"
	"time"
)

// Server is a Discord guild that owns channels.
type Server struct {
	ServerID  int64     `json:"server_id"`
	Name      string    `json:"name"`
	IconURL   *string   `json:"icon_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subnet is a named tag grouping channels by topic, independent of the
// server/channel hierarchy.
type Subnet struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Channel struct {
	ChannelID int64     `json:"channel_id"`
	ServerID  int64     `json:"server_id"`
	SubnetID  *int64    `json:"subnet_id,omitempty"`
	Name      string    `json:"name"`
	Topic     *string   `json:"topic,omitempty"`
	Category  *string   `json:"category,omitempty"`
	Position  *int      `json:"position,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User attributes are last-write-wins; every re-sighting overwrites them.
type User struct {
	UserID        int64     `json:"user_id"`
	Username      string    `json:"username"`
	Discriminator *string   `json:"discriminator,omitempty"`
	DisplayName   *string   `json:"display_name,omitempty"`
	AvatarURL     *string   `json:"avatar_url,omitempty"`
	Bot           bool      `json:"bot"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message is the atomic record. MessageID is the platform snowflake and
// the sole idempotency key; rows are created once and never hard-deleted.
// Attachments/embeds/reactions are display metadata kept as opaque JSON.
type Message struct {
	MessageID          int64           `json:"message_id"`
	ChannelID          int64           `json:"channel_id"`
	UserID             int64           `json:"user_id"`
	Content            string          `json:"content"`
	Timestamp          time.Time       `json:"timestamp"`
	EditedTimestamp    *time.Time      `json:"edited_timestamp,omitempty"`
	Deleted            bool            `json:"deleted"`
	DeletedAt          *time.Time      `json:"deleted_at,omitempty"`
	MessageType        string          `json:"message_type"`
	Mentions           []int64         `json:"mentions,omitempty"`
	Attachments        json.RawMessage `json:"attachments,omitempty"`
	Embeds             json.RawMessage `json:"embeds,omitempty"`
	Reactions          json.RawMessage `json:"reactions,omitempty"`
	ReferenceMessageID *int64          `json:"reference_message_id,omitempty"`
}

// BackfillJob statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// BackfillJob tracks one attempt to (re)populate a channel's history.
type BackfillJob struct {
	ID               int64      `json:"id"`
	ChannelID        int64      `json:"channel_id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	Status           string     `json:"status"`
	MessagesImported int        `json:"messages_imported"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ChannelStats is the per-channel aggregate served by the API.
type ChannelStats struct {
	ChannelID            int64      `json:"channel_id"`
	ChannelName          string     `json:"channel_name"`
	MessageCount         int64      `json:"message_count"`
	LastMessageTimestamp *time.Time `json:"last_message_timestamp,omitempty"`
}
