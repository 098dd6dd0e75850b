// internal/discord/bot.go
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/beezo-bot/beezo/internal/game"
	"github.com/beezo-bot/beezo/internal/handlers"
	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

// Intents are the gateway events the bot needs: guild metadata and channel messages with
// their content, for games that read plain chat.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

// Bot adapts a discordgo session to the game engine. It is the engine's Messenger,
// ChannelManager and EventSource, and it routes slash commands to a CommandHandler.
type Bot struct {
	session *discordgo.Session
	guildID string
	logger  logrus.FieldLogger

	mu     sync.RWMutex
	subs   map[string]map[uint64]func(game.Event)
	nextID uint64

	removers []func()
}

var (
	_ game.Messenger      = (*Bot)(nil)
	_ game.ChannelManager = (*Bot)(nil)
	_ game.EventSource    = (*Bot)(nil)
)

// New creates a bot for token. guildID scopes command registration to one guild; empty
// registers them globally.
func New(token, guildID string, logger logrus.FieldLogger) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	return newBot(s, guildID, logger), nil
}

func newBot(s *discordgo.Session, guildID string, logger logrus.FieldLogger) *Bot {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bot{
		session: s,
		guildID: guildID,
		logger:  logger,
		subs:    make(map[string]map[uint64]func(game.Event)),
	}
}

// Open connects to the gateway, starts routing events and registers the slash commands.
func (b *Bot) Open(handler handlers.CommandHandler) error {
	b.removers = append(b.removers,
		b.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			b.logger.WithField("user", r.User.Username).Info("Connected to Discord")
		}),
		b.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			b.dispatchMessage(m.Message)
		}),
		b.session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
			b.handleInteraction(handler, i.Interaction)
		}),
	)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	appID := b.session.State.User.ID
	if _, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, Commands()); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	return nil
}

// Close stops routing events and disconnects.
func (b *Bot) Close() error {
	for _, remove := range b.removers {
		remove()
	}
	b.removers = nil
	return b.session.Close()
}

// interactionAPI is the part of the Discord REST client used to answer commands.
type interactionAPI interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func (b *Bot) handleInteraction(handler handlers.CommandHandler, i *discordgo.Interaction) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	cmd, err := ToCommand(i, b.parentOf(i.ChannelID))
	if err != nil {
		b.logger.WithError(err).Warn("Ignoring interaction")
		return
	}
	respond(context.Background(), b.session, handler, i, cmd, b.logger)
}

// respond acknowledges the interaction before running the command, since Discord drops
// interactions left unanswered for three seconds. The reply is edited in afterwards and the
// game notifications it holds go out last.
func respond(ctx context.Context, api interactionAPI, handler handlers.CommandHandler, i *discordgo.Interaction, cmd handlers.Command, logger logrus.FieldLogger) {
	log := logger.WithField("command", cmd.Game)
	if err := api.InteractionRespond(i, Acknowledgement(), discordgo.WithContext(ctx)); err != nil {
		log.WithError(err).Error("Failed to acknowledge interaction")
	}
	reply := handler.Handle(ctx, cmd)
	if _, err := api.InteractionResponseEdit(i, ToEdit(reply), discordgo.WithContext(ctx)); err != nil {
		log.WithError(err).Error("Failed to respond to interaction")
	}
	reply.Deliver(ctx)
}

// parentOf returns the category of channelID, or "" when it has none or can't be resolved.
func (b *Bot) parentOf(channelID string) string {
	if b.session.State != nil {
		if ch, err := b.session.State.Channel(channelID); err == nil {
			return ch.ParentID
		}
	}
	ch, err := b.session.Channel(channelID)
	if err != nil {
		return ""
	}
	return ch.ParentID
}

// Subscribe implements game.EventSource.
func (b *Bot) Subscribe(channelID string, fn func(game.Event)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[channelID] == nil {
		b.subs[channelID] = make(map[uint64]func(game.Event))
	}
	b.subs[channelID][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[channelID], id)
			if len(b.subs[channelID]) == 0 {
				delete(b.subs, channelID)
			}
		})
	}
}

// dispatchMessage hands m to every subscriber of its channel. Subscribers run outside the
// lock so they may unsubscribe from inside the callback.
func (b *Bot) dispatchMessage(m *discordgo.Message) {
	if m == nil || m.Author == nil {
		return
	}
	b.mu.RLock()
	fns := make([]func(game.Event), 0, len(b.subs[m.ChannelID]))
	for _, fn := range b.subs[m.ChannelID] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()
	if len(fns) == 0 {
		return
	}

	ev := toEvent(m)
	for _, fn := range fns {
		fn(ev)
	}
}

func toEvent(m *discordgo.Message) game.Event {
	name := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		name = m.Member.Nick
	} else if m.Author.GlobalName != "" {
		name = m.Author.GlobalName
	}
	return game.Event{
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		UserName:  name,
		MessageID: m.ID,
		Content:   m.Content,
		Bot:       m.Author.Bot,
		Timestamp: m.Timestamp,
	}
}

// SendToChannel implements game.Messenger.
func (b *Bot) SendToChannel(ctx context.Context, channelID, content string) error {
	_, err := b.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return err
}

// SendDirect opens (or reuses) the DM channel with userID and posts there.
func (b *Bot) SendDirect(ctx context.Context, userID, content string) error {
	ch, err := b.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", userID, err)
	}
	_, err = b.session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx))
	return err
}

func (b *Bot) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return b.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

// CreateChannel implements game.ChannelManager with a text channel that carries its
// permission overwrites from the start.
func (b *Bot) CreateChannel(ctx context.Context, spec game.ChannelSpec) (string, error) {
	guildID := spec.GuildID
	if guildID == "" {
		guildID = b.guildID
	}
	ch, err := b.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                spec.Topic,
		ParentID:             spec.ParentID,
		PermissionOverwrites: Overwrites(spec.Rules),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

func (b *Bot) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := b.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return err
}

func (b *Bot) SetPermissions(ctx context.Context, channelID string, rules []game.PermissionRule) error {
	for _, o := range Overwrites(rules) {
		if err := b.session.ChannelPermissionSet(channelID, o.ID, o.Type, o.Allow, o.Deny, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("set permissions for %s: %w", o.ID, err)
		}
	}
	return nil
}

// Overwrites translates permission rules into Discord permission overwrites.
func Overwrites(rules []game.PermissionRule) []*discordgo.PermissionOverwrite {
	out := make([]*discordgo.PermissionOverwrite, 0, len(rules))
	for _, r := range rules {
		o := &discordgo.PermissionOverwrite{ID: r.ID, Type: discordgo.PermissionOverwriteTypeMember}
		if r.Target == game.TargetEveryone {
			o.Type = discordgo.PermissionOverwriteTypeRole
		}
		if r.AllowView {
			o.Allow |= discordgo.PermissionViewChannel
		}
		if r.AllowSend {
			o.Allow |= discordgo.PermissionSendMessages
		}
		if r.DenyView {
			o.Deny |= discordgo.PermissionViewChannel
		}
		out = append(out, o)
	}
	return out
}
