// internal/discord/commands.go
package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/davrbx/basslink/internal/lavalink"
	"github.com/davrbx/basslink/internal/player"
	"github.com/davrbx/basslink/pkg/util"
)

var errNotInVoice = errors.New("user is not in a voice channel")

// joinWait bounds how long /play waits for the voice handshake to finish
// before giving up on auto-join.
const joinWait = 10 * time.Second

func slashCommands() []*discordgo.ApplicationCommand {
	var (
		seekMin   = float64(0)
		volumeMin = float64(0)
	)
	return []*discordgo.ApplicationCommand{
		{
			Name:        "join",
			Description: "Join your voice channel",
		},
		{
			Name:        "play",
			Description: "Play a track or add it to the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "URL or search terms",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "Where to place the track",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "now", Value: "now"},
						{Name: "next", Value: "next"},
						{Name: "queue", Value: "queue"},
					},
				},
			},
		},
		{Name: "pause", Description: "Pause playback"},
		{Name: "resume", Description: "Resume playback"},
		{Name: "skip", Description: "Skip the current track"},
		{
			Name:        "seek",
			Description: "Seek within the current track",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "seconds",
					Description: "Position in seconds",
					Required:    true,
					MinValue:    &seekMin,
				},
			},
		},
		{
			Name:        "loop",
			Description: "Set the loop mode",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "Loop mode",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "off", Value: "off"},
						{Name: "track", Value: "track"},
						{Name: "queue", Value: "queue"},
					},
				},
			},
		},
		{Name: "shuffle", Description: "Shuffle the queue"},
		{Name: "previous", Description: "Play the previous track"},
		{Name: "stop", Description: "Stop playback and leave the voice channel"},
		{Name: "queue", Description: "Show the current queue"},
		{
			Name:        "volume",
			Description: "Set the player volume",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "percent",
					Description: "Volume from 0 to 200",
					Required:    true,
					MinValue:    &volumeMin,
					MaxValue:    200,
				},
			},
		},
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" {
		_ = RespondEphemeral(s, i, "This command only works in a server.")
		return
	}
	if b.registry == nil {
		_ = RespondEphemeral(s, i, "Still starting up, try again in a moment.")
		return
	}

	// The most recent command channel receives playback notices.
	b.mu.Lock()
	b.announce[i.GuildID] = i.ChannelID
	b.mu.Unlock()

	name := i.ApplicationCommandData().Name
	var err error
	switch name {
	case "join":
		err = b.cmdJoin(s, i)
	case "play":
		err = b.cmdPlay(s, i)
	case "pause":
		err = b.cmdSetPaused(s, i, true)
	case "resume":
		err = b.cmdSetPaused(s, i, false)
	case "skip":
		err = b.cmdSkip(s, i)
	case "seek":
		err = b.cmdSeek(s, i)
	case "loop":
		err = b.cmdLoop(s, i)
	case "shuffle":
		err = b.cmdShuffle(s, i)
	case "previous":
		err = b.cmdPrevious(s, i)
	case "stop":
		err = b.cmdStop(s, i)
	case "queue":
		err = b.cmdQueue(s, i)
	case "volume":
		err = b.cmdVolume(s, i)
	default:
		err = RespondEphemeral(s, i, "Unknown command.")
	}
	if err != nil {
		log.Printf("[ERR] Guild %s: /%s failed: %v", i.GuildID, name, err)
	}
}

func invokerID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func commandOptions(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (b *Bot) cmdJoin(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	channelID, err := b.findUserVoiceChannel(i.GuildID, invokerID(i))
	if err != nil {
		return RespondEphemeral(s, i, "Join a voice channel first.")
	}
	if err := b.joinVoice(i.GuildID, channelID); err != nil {
		return RespondEphemeral(s, i, "Could not join the voice channel.")
	}
	return Respond(s, i, "Joining your voice channel.")
}

func (b *Bot) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	query := opts["query"].StringValue()

	mode := player.PlayEnqueue
	if o, ok := opts["mode"]; ok {
		switch o.StringValue() {
		case "now":
			mode = player.PlayNow
		case "next":
			mode = player.PlayNext
		}
	}

	if err := RespondDeferred(s, i); err != nil {
		return err
	}

	sess, err := b.ensureActiveSession(i)
	if err != nil {
		return EditResponse(s, i, playFailureMessage(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), lavalink.DefaultRestTimeout)
	defer cancel()

	node := sess.Node()
	if node == nil {
		if node, err = b.cluster.SelectNode(); err != nil {
			return EditResponse(s, i, "No audio node is available right now.")
		}
	}

	identifier := query
	if !strings.HasPrefix(query, "http://") && !strings.HasPrefix(query, "https://") {
		identifier = "ytsearch:" + query
	}

	tracks, err := node.LoadTracks(ctx, identifier)
	if err != nil {
		var loadErr *lavalink.LoadError
		if errors.As(err, &loadErr) {
			return EditResponse(s, i, "Load failed: "+loadErr.Exception.Message)
		}
		return EditResponse(s, i, "Could not reach the audio node.")
	}
	if len(tracks) == 0 {
		return EditResponse(s, i, "Nothing found for that query.")
	}
	// A bare search yields many results; take the top hit. URLs keep
	// everything they resolve to (playlists included).
	if strings.HasPrefix(identifier, "ytsearch:") {
		tracks = tracks[:1]
	}

	if err := sess.Play(ctx, tracks, mode); err != nil {
		return EditResponse(s, i, "Could not start playback: "+err.Error())
	}

	if len(tracks) == 1 {
		t := tracks[0]
		return EditResponse(s, i, fmt.Sprintf("Queued **%s** by %s (%s).",
			t.Info.Title, t.Info.Author, util.FormatTrackLength(t.Info.Length)))
	}
	return EditResponse(s, i, fmt.Sprintf("Queued %d tracks.", len(tracks)))
}

func playFailureMessage(err error) string {
	switch {
	case errors.Is(err, errNotInVoice):
		return "Join a voice channel first."
	case errors.Is(err, lavalink.ErrNoAvailableNode):
		return "No audio node is available right now."
	default:
		return "Could not join the voice channel."
	}
}

// ensureActiveSession returns the guild's active session, auto-joining the
// invoker's voice channel when the session is idle.
func (b *Bot) ensureActiveSession(i *discordgo.InteractionCreate) (*player.Session, error) {
	sess := b.registry.GetOrCreate(i.GuildID)
	if sess.State() == player.StateActive {
		return sess, nil
	}

	channelID, err := b.findUserVoiceChannel(i.GuildID, invokerID(i))
	if err != nil {
		return nil, err
	}
	if err := b.joinVoice(i.GuildID, channelID); err != nil {
		return nil, err
	}

	// The handshake completes asynchronously through the gateway.
	deadline := time.Now().Add(joinWait)
	for time.Now().Before(deadline) {
		sess, _ := b.registry.Get(i.GuildID)
		if sess != nil && sess.State() == player.StateActive {
			return sess, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return nil, player.ErrJoinFailed
}

func (b *Bot) cmdSetPaused(s *discordgo.Session, i *discordgo.InteractionCreate, paused bool) error {
	sess, ok := b.registry.Get(i.GuildID)
	if !ok {
		return RespondEphemeral(s, i, "Nothing is playing.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), lavalink.DefaultRestTimeout)
	defer cancel()

	if err := sess.SetPaused(ctx, paused); err != nil {
		return RespondEphemeral(s, i, "Could not update the player.")
	}
	if paused {
		return Respond(s, i, "Paused.")
	}
	return Respond(s, i, "Resumed.")
}

func (b *Bot) cmdSkip(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	sess, ok := b.registry.Get(i.GuildID)
	if !ok {
		return RespondEphemeral(s, i, "Nothing is playing.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), lavalink.DefaultRestTimeout)
	defer cancel()

	if err := sess.Skip(ctx); err != nil {
		if errors.Is(err, player.ErrNothingPlaying) {
			return RespondEphemeral(s, i, "Nothing is playing.")
		}
		return RespondEphemeral(s, i, "Could not skip.")
	}
	return Respond(s, i, "Skipped.")
}

func (b *Bot) cmdSeek(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	sess, ok := b.registry.Get(i.GuildID)
	if !ok {
		return RespondEphemeral(s, i, "Nothing is playing.")
	}
	seconds := commandOptions(i)["seconds"].IntValue()

	ctx, cancel := context.WithTimeout(context.Background(), lavalink.DefaultRestTimeout)
	defer cancel()

	if err := sess.Seek(ctx, seconds*1000); err != nil {
		if errors.Is(err, player.ErrNothingPlaying) {
			return RespondEphemeral(s, i, "Nothing is playing.")
		}
		return RespondEphemeral(s, i, "Could not seek.")
	}
	return Respond(s, i, "Seeked to "+util.FormatTrackLength(seconds*1000)+".")
}

func (b *Bot) cmdLoop(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	sess, ok := b.registry.Get(i.GuildID)
	if !ok {
		return RespondEphemeral(s, i, "Nothing is playing.")
	}

	var mode player.LoopMode
	switch commandOptions(i)["mode"].StringValue() {
	case "track":
		mode = player.LoopTrack
	case "queue":
		mode = player.LoopQueue
	default:
		mode = player.LoopOff
	}
	sess.SetLoop(mode)
	return Respond(s, i, "Loop mode: "+mode.String()+".")
}

func (b *Bot) cmdShuffle(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	sess, ok := b.registry.Get(i.GuildID)
	if !ok {
		return RespondEphemeral(s, i, "Nothing is playing.")
	}
	sess.Shuffle()
	return Respond(s, i, "Queue shuffled.")
}

func (b *Bot) cmdPrevious(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	sess, ok := b.registry.Get(i.GuildID)
	if !ok {
		return RespondEphemeral(s, i, "Nothing is playing.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), lavalink.DefaultRestTimeout)
	defer cancel()

	if err := sess.Previous(ctx); err != nil {
		if errors.Is(err, player.ErrNoHistory) {
			return RespondEphemeral(s, i, "No previous track.")
		}
		return RespondEphemeral(s, i, "Could not go back.")
	}
	return Respond(s, i, "Playing the previous track.")
}

func (b *Bot) cmdStop(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	sess, ok := b.registry.Get(i.GuildID)
	if !ok {
		return RespondEphemeral(s, i, "Nothing is playing.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), lavalink.DefaultRestTimeout)
	defer cancel()

	_ = sess.Leave(ctx)
	if err := b.dg.ChannelVoiceJoinManual(i.GuildID, "", false, true); err != nil {
		log.Printf("[WARN] Guild %s: voice disconnect failed: %v", i.GuildID, err)
	}
	return Respond(s, i, "Stopped and left the voice channel.")
}

func (b *Bot) cmdQueue(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	sess, ok := b.registry.Get(i.GuildID)
	if !ok {
		return RespondEphemeral(s, i, "Nothing is playing.")
	}

	current := sess.CurrentTrack()
	upcoming := sess.Queue()
	if current == nil && len(upcoming) == 0 {
		return RespondEphemeral(s, i, "The queue is empty.")
	}

	var sb strings.Builder
	if current != nil {
		_, _, pos := sess.Acked()
		fmt.Fprintf(&sb, "**Now playing:** %s by %s (%s / %s)\n",
			current.Info.Title, current.Info.Author,
			util.FormatTrackLength(pos), util.FormatTrackLength(current.Info.Length))
	}
	for n, t := range upcoming {
		if n == 10 {
			fmt.Fprintf(&sb, "... and %d more", len(upcoming)-n)
			break
		}
		fmt.Fprintf(&sb, "%d. %s by %s (%s)\n",
			n+1, t.Info.Title, t.Info.Author, util.FormatTrackLength(t.Info.Length))
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: sb.String(),
		Color:       EmbedColor,
	}
	return RespondEmbed(s, i, embed)
}

func (b *Bot) cmdVolume(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	sess, ok := b.registry.Get(i.GuildID)
	if !ok {
		return RespondEphemeral(s, i, "Nothing is playing.")
	}
	percent := int(commandOptions(i)["percent"].IntValue())

	ctx, cancel := context.WithTimeout(context.Background(), lavalink.DefaultRestTimeout)
	defer cancel()

	if err := sess.SetVolume(ctx, percent); err != nil {
		return RespondEphemeral(s, i, "Could not set the volume.")
	}
	return Respond(s, i, fmt.Sprintf("Volume set to %d%%.", percent))
}
