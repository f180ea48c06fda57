// Package export parses DiscordChatExporter JSON documents into structured
// records. It is a pure transformation layer: no storage access, one
// non-restartable pass per file.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/madofuller/discordscraper/internal/security"
)

// ParseError marks a document that cannot be read at all. The importer
// skips the file and continues the batch.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("malformed export document: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// GuildMeta is the exporting guild as written by DiscordChatExporter.
type GuildMeta struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IconURL string `json:"iconUrl"`
}

type ChannelMeta struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Topic    *string `json:"topic"`
	Category *string `json:"category"`
	Position *int    `json:"position"`
}

// Document is the per-file metadata available before the message stream.
type Document struct {
	Guild   GuildMeta   `json:"guild"`
	Channel ChannelMeta `json:"channel"`
}

type RawAuthor struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Discriminator *string `json:"discriminator"`
	Nickname      *string `json:"nickname"`
	AvatarURL     *string `json:"avatarUrl"`
	IsBot         bool    `json:"isBot"`
}

type RawMention struct {
	ID string `json:"id"`
}

type RawReference struct {
	MessageID string `json:"messageId"`
}

// RawMessage is one element of the messages array, untouched except for
// JSON decoding. Side-data stays opaque.
type RawMessage struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Timestamp       string          `json:"timestamp"`
	TimestampEdited *string         `json:"timestampEdited"`
	Content         string          `json:"content"`
	Author          RawAuthor       `json:"author"`
	Mentions        []RawMention    `json:"mentions"`
	Attachments     json.RawMessage `json:"attachments"`
	Embeds          json.RawMessage `json:"embeds"`
	Reactions       json.RawMessage `json:"reactions"`
	Reference       *RawReference   `json:"reference"`
}

// Author is a validated message author, ready for the identity upsert.
type Author struct {
	ID            int64
	Username      string
	Discriminator *string
	DisplayName   *string
	AvatarURL     *string
	Bot           bool
}

// Record is a validated message ready for insertion.
type Record struct {
	MessageID          int64
	Type               string
	Timestamp          time.Time
	EditedTimestamp    *time.Time
	Content            string
	Author             Author
	Mentions           []int64
	Attachments        json.RawMessage
	Embeds             json.RawMessage
	Reactions          json.RawMessage
	ReferenceMessageID *int64
}

// Record validates the raw message and converts identifiers and
// timestamps. An error here means this single record is skipped, never
// the whole file.
func (m *RawMessage) Record() (*Record, error) {
	id, err := security.ParseSnowflake(m.ID)
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	authorID, err := security.ParseSnowflake(m.Author.ID)
	if err != nil {
		return nil, fmt.Errorf("message %d author id: %w", id, err)
	}

	// fall back to the edit timestamp when the original is absent
	tsRaw := m.Timestamp
	if tsRaw == "" && m.TimestampEdited != nil {
		tsRaw = *m.TimestampEdited
	}
	if tsRaw == "" {
		return nil, fmt.Errorf("message %d has no timestamp", id)
	}
	ts, err := parseTimestamp(tsRaw)
	if err != nil {
		return nil, fmt.Errorf("message %d timestamp: %w", id, err)
	}

	var edited *time.Time
	if m.TimestampEdited != nil && *m.TimestampEdited != "" {
		t, err := parseTimestamp(*m.TimestampEdited)
		if err != nil {
			return nil, fmt.Errorf("message %d edit timestamp: %w", id, err)
		}
		edited = &t
	}

	mentions := make([]int64, 0, len(m.Mentions))
	for _, men := range m.Mentions {
		mid, err := security.ParseSnowflake(men.ID)
		if err != nil {
			return nil, fmt.Errorf("message %d mention id: %w", id, err)
		}
		mentions = append(mentions, mid)
	}

	var ref *int64
	if m.Reference != nil && m.Reference.MessageID != "" {
		rid, err := security.ParseSnowflake(m.Reference.MessageID)
		if err != nil {
			return nil, fmt.Errorf("message %d reference id: %w", id, err)
		}
		ref = &rid
	}

	username := m.Author.Name
	if username == "" {
		username = "Unknown"
	}

	msgType := m.Type
	if msgType == "" {
		msgType = "Default"
	}

	return &Record{
		MessageID: id,
		Type:      msgType,
		Timestamp: ts,
		EditedTimestamp: edited,
		Content:   m.Content,
		Author: Author{
			ID:            authorID,
			Username:      username,
			Discriminator: m.Author.Discriminator,
			DisplayName:   m.Author.Nickname,
			AvatarURL:     m.Author.AvatarURL,
			Bot:           m.Author.IsBot,
		},
		Mentions:           mentions,
		Attachments:        m.Attachments,
		Embeds:             m.Embeds,
		Reactions:          m.Reactions,
		ReferenceMessageID: ref,
	}, nil
}

// parseTimestamp accepts ISO-8601 with a 'Z' suffix or numeric offset and
// normalizes to UTC.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Reader streams one export document: metadata first, then messages one
// at a time. The sequence is lazy, finite and non-restartable.
type Reader struct {
	dec        *json.Decoder
	doc        Document
	metaRead   bool
	inMessages bool
	done       bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{dec: json.NewDecoder(r)}
}

// Meta reads the document header up to the start of the messages array.
func (r *Reader) Meta() (*Document, error) {
	if r.metaRead {
		return &r.doc, nil
	}

	tok, err := r.dec.Token()
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, &ParseError{Err: fmt.Errorf("expected object, got %v", tok)}
	}

	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			// document without a messages array: zero messages
			r.metaRead = true
			r.done = true
			return &r.doc, nil
		}

		key, ok := tok.(string)
		if !ok {
			return nil, &ParseError{Err: fmt.Errorf("expected object key, got %v", tok)}
		}

		switch key {
		case "guild":
			if err := r.dec.Decode(&r.doc.Guild); err != nil {
				return nil, &ParseError{Err: err}
			}
		case "channel":
			if err := r.dec.Decode(&r.doc.Channel); err != nil {
				return nil, &ParseError{Err: err}
			}
		case "messages":
			tok, err := r.dec.Token()
			if err != nil {
				return nil, &ParseError{Err: err}
			}
			if d, ok := tok.(json.Delim); !ok || d != '[' {
				return nil, &ParseError{Err: fmt.Errorf("messages is not an array")}
			}
			r.metaRead = true
			r.inMessages = true
			return &r.doc, nil
		default:
			var skip json.RawMessage
			if err := r.dec.Decode(&skip); err != nil {
				return nil, &ParseError{Err: err}
			}
		}
	}
}

// Next returns the next raw message, or io.EOF when the stream ends.
func (r *Reader) Next() (*RawMessage, error) {
	if !r.metaRead {
		if _, err := r.Meta(); err != nil {
			return nil, err
		}
	}
	if r.done || !r.inMessages {
		return nil, io.EOF
	}

	if !r.dec.More() {
		// consume the closing bracket; trailing keys are irrelevant
		if _, err := r.dec.Token(); err != nil && err != io.EOF {
			return nil, &ParseError{Err: err}
		}
		r.done = true
		return nil, io.EOF
	}

	var m RawMessage
	if err := r.dec.Decode(&m); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &m, nil
}
