// internal/discord/bot.go
package discord

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/davrbx/basslink/internal/cleanup"
	"github.com/davrbx/basslink/internal/config"
	"github.com/davrbx/basslink/internal/lavalink"
	"github.com/davrbx/basslink/internal/metrics"
	"github.com/davrbx/basslink/internal/player"
	v "github.com/davrbx/basslink/internal/version"
)

// Bot is the Discord-facing glue around the player core. It contains no
// playback logic: commands translate into session operations, notifications
// translate into message edits.
type Bot struct {
	dg       *discordgo.Session
	cfg      *config.Config
	cluster  *lavalink.Cluster
	registry *player.Registry
	cleanup  *cleanup.Cache

	mu       sync.Mutex
	pending  map[string]*pendingVoice // guildID -> partial voice handshake
	announce map[string]string        // guildID -> text channel for playback notices
}

// StartBot runs the bot until ctx is done.
func StartBot(ctx context.Context, cfg *config.Config) error {
	b := &Bot{
		cfg:      cfg,
		pending:  make(map[string]*pendingVoice),
		announce: make(map[string]string),
	}
	return b.run(ctx)
}

func (b *Bot) run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	b.dg = dg

	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onInteractionCreate)
	dg.AddHandler(b.onVoiceStateUpdate)
	dg.AddHandler(b.onVoiceServerUpdate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer dg.Close()

	codec, err := lavalink.NewCodec(b.cfg.Codec)
	if err != nil {
		return err
	}
	log.Printf("[INFO] Using %s JSON codec", codec.Name())

	b.cluster = lavalink.NewCluster(b.cfg.NodeConfigs, dg.State.User.ID, codec, b.cfg.RestTimeout)
	b.cluster.OnStats = metrics.ObserveStats
	b.registry = player.NewRegistry(ctx, b.cluster, b.cfg.IdleTimeout)
	b.cleanup = cleanup.New(ctx, b.cfg.CleanupTTL)

	dispatcher := lavalink.NewDispatcher(b.cluster, b.registry)
	b.cluster.Start(ctx, dispatcher)
	go b.cluster.ProbeVersions(ctx)

	metrics.StartServer(b.cfg.MetricsAddr)

	go b.consumeNotifications(ctx)
	go b.consumeEvictions(ctx)

	<-ctx.Done()
	log.Println("[INFO] ❎ Shutdown signal received. Cleaning up...")
	return nil
}

// onReady registers the slash commands once the gateway is up.
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("[INFO] Logged in as %s (%s %s)", r.User.String(), v.AppName, v.AppVersion)

	for _, cmd := range slashCommands() {
		if _, err := s.ApplicationCommandCreate(s.State.User.ID, "", cmd); err != nil {
			log.Printf("[ERR] Failed to register /%s: %v", cmd.Name, err)
		}
	}
}
