// internal/discord/voice.go
package discord

import (
	"context"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/davrbx/basslink/internal/lavalink"
	"github.com/davrbx/basslink/internal/player"
)

// pendingVoice accumulates the two gateway halves of a voice handshake: the
// bot's own voice state (session id) and the voice server update (token +
// endpoint). Once both are present the session can open its remote player.
type pendingVoice struct {
	channelID string
	sessionID string
	token     string
	endpoint  string
}

func (p *pendingVoice) complete() bool {
	return p.sessionID != "" && p.token != "" && p.endpoint != ""
}

func (p *pendingVoice) handshake() player.VoiceHandshake {
	return player.VoiceHandshake{
		ChannelID: p.channelID,
		SessionID: p.sessionID,
		Token:     p.token,
		Endpoint:  p.endpoint,
	}
}

// joinVoice asks the gateway to move the bot into a voice channel. The actual
// lavalink join happens once both voice events arrive.
func (b *Bot) joinVoice(guildID, channelID string) error {
	b.mu.Lock()
	p := b.pending[guildID]
	if p == nil {
		p = &pendingVoice{}
		b.pending[guildID] = p
	}
	p.channelID = channelID
	b.mu.Unlock()

	return b.dg.ChannelVoiceJoinManual(guildID, channelID, false, true)
}

// onVoiceStateUpdate captures the bot's own voice session id.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || vs.UserID != s.State.User.ID {
		return
	}

	if vs.ChannelID == "" {
		// Kicked or moved out: the session is over.
		if b.registry != nil {
			if sess, ok := b.registry.Get(vs.GuildID); ok {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), lavalink.DefaultRestTimeout)
					defer cancel()
					_ = sess.Leave(ctx)
				}()
			}
		}
		b.mu.Lock()
		delete(b.pending, vs.GuildID)
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	p := b.pending[vs.GuildID]
	if p == nil {
		p = &pendingVoice{}
		b.pending[vs.GuildID] = p
	}
	p.channelID = vs.ChannelID
	p.sessionID = vs.SessionID
	b.mu.Unlock()

	b.tryJoin(vs.GuildID)
}

// onVoiceServerUpdate captures the voice token and endpoint. Discord re-sends
// this on voice region changes, so an already-active session resyncs.
func (b *Bot) onVoiceServerUpdate(s *discordgo.Session, vsu *discordgo.VoiceServerUpdate) {
	b.mu.Lock()
	p := b.pending[vsu.GuildID]
	if p == nil {
		p = &pendingVoice{}
		b.pending[vsu.GuildID] = p
	}
	p.token = vsu.Token
	p.endpoint = vsu.Endpoint
	b.mu.Unlock()

	b.tryJoin(vsu.GuildID)
}

// tryJoin opens or refreshes the guild's remote player once the handshake is
// complete.
func (b *Bot) tryJoin(guildID string) {
	b.mu.Lock()
	p := b.pending[guildID]
	if p == nil || !p.complete() || b.registry == nil {
		b.mu.Unlock()
		return
	}
	handshake := p.handshake()
	b.mu.Unlock()

	sess := b.registry.GetOrCreate(guildID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), lavalink.DefaultRestTimeout)
		defer cancel()

		switch sess.State() {
		case player.StateIdle:
			if err := sess.Join(ctx, handshake); err != nil {
				log.Printf("[ERR] Guild %s: join failed: %v", guildID, err)
			}
		case player.StateActive:
			// Voice server moved; push the fresh credentials.
			sess.UpdateHandshake(handshake)
			sess.Resync(ctx)
		}
	}()
}

// findUserVoiceChannel locates the voice channel a user is currently in.
func (b *Bot) findUserVoiceChannel(guildID, userID string) (string, error) {
	guild, err := b.dg.State.Guild(guildID)
	if err != nil {
		return "", err
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, nil
		}
	}
	return "", errNotInVoice
}
