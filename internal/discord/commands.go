// internal/discord/commands.go
package discord

import (
	"fmt"
	"strconv"

	"github.com/beezo-bot/beezo/internal/game"
	"github.com/beezo-bot/beezo/internal/games/mathquiz"
	"github.com/beezo-bot/beezo/internal/games/uno"
	"github.com/beezo-bot/beezo/internal/games/wordassoc"
	"github.com/beezo-bot/beezo/internal/handlers"
	"github.com/bwmarrin/discordgo"
)

func sub(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options:     options,
	}
}

func lobbySubs(title string) []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		sub(handlers.SubStart, "Open a new "+title+" game"),
		sub(handlers.SubJoin, "Join the open "+title+" game"),
		sub(handlers.SubBegin, "Start the game you host"),
		sub(handlers.SubLeave, "Leave the game"),
		sub(handlers.SubEnd, "End the game you host"),
		sub(handlers.SubStatus, "Show the game's state"),
		sub(handlers.SubFeed, "Get a link to the live feed"),
	}
}

var colorChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "red", Value: string(uno.Red)},
	{Name: "yellow", Value: string(uno.Yellow)},
	{Name: "green", Value: string(uno.Green)},
	{Name: "blue", Value: string(uno.Blue)},
}

// Commands are the slash commands the bot registers, one per game kind.
func Commands() []*discordgo.ApplicationCommand {
	dmAllowed := false

	unoCmd := &discordgo.ApplicationCommand{
		Name:         string(uno.Kind),
		Description:  "Play UNO",
		DMPermission: &dmAllowed,
		Options: append(lobbySubs("UNO"),
			sub(handlers.SubPlay, "Play a card",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "card",
					Description: "e.g. red 5, blue skip, wild",
					Required:    true,
				},
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "color",
					Description: "Colour for a wild card",
					Choices:     colorChoices,
				},
			),
			sub(handlers.SubDraw, "Draw a card and pass"),
			sub(handlers.SubHand, "DM me my hand"),
		),
	}

	wordCmd := &discordgo.ApplicationCommand{
		Name:         string(wordassoc.Kind),
		Description:  "Play word association",
		DMPermission: &dmAllowed,
		Options: append(lobbySubs("word association"),
			sub(handlers.SubGuess, "Guess the word",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "word",
					Description: "Your guess",
					Required:    true,
				},
			),
			sub(handlers.SubHand, "DM me my word again"),
		),
	}

	quizCmd := &discordgo.ApplicationCommand{
		Name:         string(mathquiz.Kind),
		Description:  "Play a math quiz",
		DMPermission: &dmAllowed,
		Options: append(lobbySubs("math quiz"),
			sub(handlers.SubAnswer, "Answer the current question",
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "value",
					Description: "Your answer",
					Required:    true,
				},
			),
			sub(handlers.SubHand, "Repeat the current question"),
		),
	}

	return []*discordgo.ApplicationCommand{unoCmd, wordCmd, quizCmd}
}

// ToCommand strips an application command interaction down to a handlers.Command.
// parentID is the category of the invoking channel, if any.
func ToCommand(i *discordgo.Interaction, parentID string) (handlers.Command, error) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return handlers.Command{}, fmt.Errorf("unsupported interaction type %s", i.Type)
	}
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 || data.Options[0].Type != discordgo.ApplicationCommandOptionSubCommand {
		return handlers.Command{}, fmt.Errorf("command %q has no subcommand", data.Name)
	}

	cmd := handlers.Command{
		Game:      game.Kind(data.Name),
		Sub:       data.Options[0].Name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		ParentID:  parentID,
		Args:      make(map[string]string),
	}
	if u := invoker(i); u != nil {
		cmd.UserID = u.ID
		cmd.UserName = displayName(i.Member, u)
	}
	for _, opt := range data.Options[0].Options {
		cmd.Args[opt.Name] = optionString(opt)
	}
	return cmd, nil
}

func invoker(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func displayName(m *discordgo.Member, u *discordgo.User) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func optionString(opt *discordgo.ApplicationCommandInteractionDataOption) string {
	switch opt.Type {
	case discordgo.ApplicationCommandOptionString:
		return opt.StringValue()
	case discordgo.ApplicationCommandOptionInteger:
		return strconv.FormatInt(opt.IntValue(), 10)
	}
	return fmt.Sprint(opt.Value)
}

// Acknowledgement defers the response to a command. Discord shows the invoker a private
// "thinking" state until the reply is edited in.
func Acknowledgement() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}
}

// ToEdit renders a handler reply as the edit that replaces the acknowledgement.
func ToEdit(r handlers.Reply) *discordgo.WebhookEdit {
	content := r.Content
	return &discordgo.WebhookEdit{Content: &content}
}
