// Package discover lists a guild's text channels through the Discord API
// and turns them into subnet configuration entries.
package discover

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/madofuller/discordscraper/internal/subnets"
)

type Discoverer struct {
	log     *slog.Logger
	session *discordgo.Session
}

func New(log *slog.Logger, botToken string) (*Discoverer, error) {
	s, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Discoverer{log: log, session: s}, nil
}

// Channels fetches the guild's channel list over REST (no gateway
// connection) and returns subnet entries for text and announcement
// channels, sorted by name.
func (d *Discoverer) Channels(guildID string) ([]subnets.Entry, error) {
	channels, err := d.session.GuildChannels(guildID)
	if err != nil {
		return nil, fmt.Errorf("fetch guild channels: %w", err)
	}

	var entries []subnets.Entry
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText && ch.Type != discordgo.ChannelTypeGuildNews {
			continue
		}
		entries = append(entries, subnets.Entry{
			Name:        ch.Name,
			ChannelID:   ch.ID,
			Description: ch.Name + " channel",
			Tags:        InferTags(ch.Name),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	d.log.Info("channels_discovered", "guild_id", guildID, "total", len(channels), "text", len(entries))
	return entries, nil
}

// InferTags categorizes a channel from its name.
func InferTags(name string) []string {
	low := strings.ToLower(name)
	var tags []string
	if strings.Contains(low, "subnet") {
		tags = append(tags, "subnet")
	}
	if strings.Contains(low, "general") {
		tags = append(tags, "general")
	}
	if strings.Contains(low, "announce") {
		tags = append(tags, "announcements")
	}
	return tags
}
