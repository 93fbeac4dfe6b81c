package discord

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/fitbet/src/chat"
)

func numberOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionNumber,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func integerOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

var commandDefinitions = map[string]*discordgo.ApplicationCommand{
	chat.CmdHelp: {
		Name:        chat.CmdHelp,
		Description: "List the available commands",
	},
	chat.CmdCreate: {
		Name:        chat.CmdCreate,
		Description: "Create a challenge in this channel",
		Options: []*discordgo.ApplicationCommandOption{
			integerOption("duration", "Challenge length in the configured unit", true),
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "stake",
				Description: "Stake per participant, e.g. 1000 or 12.50",
				Required:    true,
			},
			integerOption("threshold", "Discipline threshold in percent (default 80)", false),
			integerOption("max_skips", "Allowed skipped check-ins (default 1)", false),
		},
	},
	chat.CmdBankHolder: {
		Name:        chat.CmdBankHolder,
		Description: "Start the bank holder election",
	},
	chat.CmdStatus: {
		Name:        chat.CmdStatus,
		Description: "Show the running challenge, or your challenges in a DM",
	},
	chat.CmdCancel: {
		Name:        chat.CmdCancel,
		Description: "Cancel the challenge before it starts, or a draft in a DM",
	},
	chat.CmdOnboard: {
		Name:        chat.CmdOnboard,
		Description: "Submit your start metrics",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "track",
				Description: "Goal direction",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "cut", Value: "cut"},
					{Name: "bulk", Value: "bulk"},
				},
			},
			numberOption("weight", "Weight in kg", true),
			numberOption("waist", "Waist in cm", true),
			numberOption("height", "Height in cm", true),
			numberOption("target_weight", "Target weight in kg", true),
			numberOption("target_waist", "Target waist in cm", true),
		},
	},
	chat.CmdCheckin: {
		Name:        chat.CmdCheckin,
		Description: "Submit the measurements of an open check-in",
		Options: []*discordgo.ApplicationCommandOption{
			numberOption("weight", "Weight in kg", true),
			numberOption("waist", "Waist in cm", true),
		},
	},
	chat.CmdDone: {
		Name:        chat.CmdDone,
		Description: "Submit your pending onboarding or check-in",
	},
}

var defaultCommandOrder = []string{
	chat.CmdHelp,
	chat.CmdCreate,
	chat.CmdBankHolder,
	chat.CmdStatus,
	chat.CmdCancel,
	chat.CmdOnboard,
	chat.CmdCheckin,
	chat.CmdDone,
}

// RegisterSlashCommands registers the requested slash commands. An empty
// guildID registers them globally so they also work in DMs.
func RegisterSlashCommands(s *discordgo.Session, guildID string, names ...string) error {
	if len(names) == 0 {
		names = defaultCommandOrder
	}

	var failures []string
	for _, name := range names {
		definition, ok := commandDefinitions[name]
		if !ok {
			log.Printf("discord: unknown slash command %q", name)
			continue
		}

		_, err := s.ApplicationCommandCreate(s.State.User.ID, guildID, definition)
		if err != nil {
			if isDuplicateCommandError(err) {
				log.Printf("discord: slash command %q already registered", name)
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			log.Printf("discord: failed to register command %q: %v", name, err)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("discord: slash command registration errors: %s", strings.Join(failures, "; "))
	}
	return nil
}

func isDuplicateCommandError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		if strings.Contains(strings.ToLower(restErr.Message.Message), "already exists") {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "50035") && strings.Contains(msg, "already exists")
}

// commandArgs flattens options into the positional argument string the chat
// handler parses, following the definition's option order.
func commandArgs(name string, opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	def, ok := commandDefinitions[name]
	if !ok {
		return ""
	}
	byName := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		byName[opt.Name] = opt
	}

	var args []string
	for _, want := range def.Options {
		opt, ok := byName[want.Name]
		if !ok {
			// Positional parsing cannot skip a slot, so stop at the first gap.
			break
		}
		args = append(args, optionText(opt))
	}
	return strings.Join(args, " ")
}

func optionText(opt *discordgo.ApplicationCommandInteractionDataOption) string {
	switch opt.Type {
	case discordgo.ApplicationCommandOptionInteger:
		return strconv.FormatInt(opt.IntValue(), 10)
	case discordgo.ApplicationCommandOptionNumber:
		return strconv.FormatFloat(opt.FloatValue(), 'f', -1, 64)
	case discordgo.ApplicationCommandOptionString:
		return strings.Join(strings.Fields(opt.StringValue()), "")
	}
	return fmt.Sprint(opt.Value)
}
