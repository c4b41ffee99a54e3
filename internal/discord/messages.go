// internal/discord/messages.go
package discord

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/davrbx/basslink/internal/cleanup"
	"github.com/davrbx/basslink/internal/metrics"
	"github.com/davrbx/basslink/internal/player"
	"github.com/davrbx/basslink/pkg/util"
)

// consumeNotifications turns player core notifications into channel messages.
// Now-playing messages go through the cleanup cache so at most one lives per
// guild and stale ones get deleted.
func (b *Bot) consumeNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-b.registry.Notifications():
			b.handleNotification(n)
		}
	}
}

func (b *Bot) handleNotification(n player.Notification) {
	switch n.Kind {
	case player.NotifySessionJoined:
		metrics.ActiveSessions.Set(float64(b.registry.Count()))
	case player.NotifySessionLeft:
		metrics.ActiveSessions.Set(float64(b.registry.Count()))
		if h, ok := b.cleanup.Remove(n.GuildID); ok {
			b.deleteMessage(h)
		}
	case player.NotifyTrackChanged:
		b.announceTrack(n)
	case player.NotifyPlaybackError:
		b.announceText(n.GuildID, "⚠️ "+n.Message)
	case player.NotifyQueueExhausted:
		b.announceText(n.GuildID, "Queue finished.")
	}
}

// announceTrack posts a fresh now-playing embed and retires the previous one.
func (b *Bot) announceTrack(n player.Notification) {
	channelID := b.announceChannel(n.GuildID)
	if channelID == "" || n.Track == nil {
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Now playing",
		Description: fmt.Sprintf("**%s** by %s (%s)",
			n.Track.Info.Title, n.Track.Info.Author,
			util.FormatTrackLength(n.Track.Info.Length)),
		Color: EmbedColor,
	}
	if n.Track.Info.ArtworkURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: n.Track.Info.ArtworkURL}
	}

	msg, err := MessageEmbed(b.dg, channelID, embed)
	if err != nil {
		log.Printf("[WARN] Guild %s: failed to post now-playing: %v", n.GuildID, err)
		return
	}

	prev, ok := b.cleanup.Put(n.GuildID, cleanup.Handle{ChannelID: channelID, MessageID: msg.ID})
	if ok {
		b.deleteMessage(prev)
	}
}

func (b *Bot) announceText(guildID, content string) {
	channelID := b.announceChannel(guildID)
	if channelID == "" {
		return
	}
	if _, err := b.dg.ChannelMessageSend(channelID, content); err != nil {
		log.Printf("[WARN] Guild %s: failed to post notice: %v", guildID, err)
	}
}

func (b *Bot) announceChannel(guildID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.announce[guildID]
}

// consumeEvictions deletes now-playing messages whose TTL ran out.
func (b *Bot) consumeEvictions(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.cleanup.Evictions():
			b.deleteMessage(ev.Handle)
		}
	}
}

func (b *Bot) deleteMessage(h cleanup.Handle) {
	if err := b.dg.ChannelMessageDelete(h.ChannelID, h.MessageID); err != nil {
		log.Printf("[WARN] Failed to delete message %s in %s: %v", h.MessageID, h.ChannelID, err)
	}
}
