package discordblue

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"strings"
)

const (
	setupDoodadName = "setup"

	cmdSync  = "sync"
	cmdClear = "clear"
	cmdSetup = "setup"

	clearScopeAll = "all"
	clearScopeBot = "bot"

	wrongChannelMessage    = "Cannot use in this channel"
	clearingMessagesFormat = "Clearing messages from %s"
	employeeRoleFormat     = "%s is the role with employee permission"
	replacingPermissions   = "Replacing permissions"
	noDoodadsLoadedMessage = "No doodads loaded"
	reloadedConfigMessage  = "Reloaded config"
)

var administratorPermission int64 = discordgo.PermissionAdministrator

// setupDoodad provides the bot management commands. It's always loaded.
type setupDoodad struct{}

func (setupDoodad) Name() string {
	return setupDoodadName
}

func (setupDoodad) Commands() []*discordgo.ApplicationCommand {
	doodadNameOption := &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         "doodad_name",
		Description:  "Doodad name",
		Required:     true,
		Autocomplete: true,
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdSync,
			Description: "Sync commands with discord",
		},
		{
			Name:        cmdClear,
			Description: "Clear all or bot messages in the bot channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "scope",
					Description: "Messages to clear",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "All", Value: clearScopeAll},
						{Name: "Bot", Value: clearScopeBot},
					},
				},
			},
		},
		{
			Name:                     cmdSetup,
			Description:              "Bot setup",
			DefaultMemberPermissions: &administratorPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
					Name:        "permissions",
					Description: "Manage permissions",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionSubCommand,
							Name:        "get",
							Description: "Get role with employee permissions",
						},
						{
							Type:        discordgo.ApplicationCommandOptionSubCommand,
							Name:        "set",
							Description: "Set role with employee permissions",
							Options: []*discordgo.ApplicationCommandOption{
								{
									Type:        discordgo.ApplicationCommandOptionRole,
									Name:        "role",
									Description: "Employee role",
									Required:    true,
								},
							},
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
					Name:        "doodads",
					Description: "Manage doodads",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionSubCommand,
							Name:        "get_all",
							Description: "List all doodads",
						},
						{
							Type:        discordgo.ApplicationCommandOptionSubCommand,
							Name:        "get_loaded",
							Description: "List loaded doodads",
						},
						{
							Type:        discordgo.ApplicationCommandOptionSubCommand,
							Name:        "load",
							Description: "Load a doodad",
							Options:     []*discordgo.ApplicationCommandOption{doodadNameOption},
						},
						{
							Type:        discordgo.ApplicationCommandOptionSubCommand,
							Name:        "unload",
							Description: "Unload a doodad",
							Options:     []*discordgo.ApplicationCommandOption{doodadNameOption},
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "reload",
					Description: "Reload config",
				},
			},
		},
	}
}

func (d setupDoodad) Handle(ctx context.Context, b *Bot, h InteractionHandler) error {
	i := h.GetInteraction()
	path, options := interactionOptions(i)

	switch i.ApplicationCommandData().Name {
	case cmdSync:
		if err := b.requireEmployee(ctx, h); err != nil {
			return err
		}
		return d.sync(ctx, b, h)
	case cmdClear:
		if err := b.requireEmployee(ctx, h); err != nil {
			return err
		}
		scope, err := requireOption(options, "scope")
		if err != nil {
			return err
		}
		return d.clear(ctx, b, h, scope)
	case cmdSetup:
		return d.setup(ctx, b, h, strings.Join(path, " "), options)
	default:
		return ErrUnknownCommand
	}
}

func (setupDoodad) sync(ctx context.Context, b *Bot, h InteractionHandler) error {
	h.Logger().InfoContext(ctx, "Syncing commands")
	if err := h.Defer(ctx); err != nil {
		return err
	}
	count, err := b.syncCommands(ctx)
	if err != nil {
		return commandFailed(err, "error syncing commands")
	}
	return h.Reply(ctx, fmt.Sprintf(loadedCommandsFormat, count))
}

// clear deletes messages from the bot channel, leaving a notice up while
// it works
func (setupDoodad) clear(ctx context.Context, b *Bot, h InteractionHandler, scope string) error {
	i := h.GetInteraction()
	_, botChannelID := b.discord.destination()
	if botChannelID == "" || i.ChannelID != botChannelID {
		return h.Reply(ctx, wrongChannelMessage)
	}

	session := b.discord.session
	notice, err := session.ChannelMessageSend(
		i.ChannelID,
		fmt.Sprintf(clearingMessagesFormat, scope),
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return commandFailed(err, "error sending notice")
	}
	if err = h.Defer(ctx); err != nil {
		return err
	}

	botUserID := b.discord.BotUserID()
	deleted := 0
	before := ""
	for {
		page, pageErr := session.ChannelMessages(
			i.ChannelID,
			discordMessagesPageSize,
			before,
			"",
			"",
			discordgo.WithContext(ctx),
		)
		if pageErr != nil {
			return commandFailed(pageErr, "error reading channel history")
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			switch {
			case m.ID == notice.ID:
				continue
			case m.Interaction != nil && m.Interaction.ID == i.ID:
				// the deferred response to this interaction
				continue
			case scope == clearScopeBot && (m.Author == nil || m.Author.ID != botUserID):
				continue
			}
			if delErr := session.ChannelMessageDelete(
				i.ChannelID,
				m.ID,
				discordgo.WithContext(ctx),
			); delErr != nil {
				h.Logger().WarnContext(ctx, "error deleting message", "message_id", m.ID, tint.Err(delErr))
				continue
			}
			deleted++
		}
		if len(page) < discordMessagesPageSize {
			break
		}
		before = page[len(page)-1].ID
	}

	h.Logger().InfoContext(ctx, "cleared messages", "scope", scope, "deleted", deleted)
	if err = session.ChannelMessageDelete(i.ChannelID, notice.ID, discordgo.WithContext(ctx)); err != nil {
		return commandFailed(err, "error deleting notice")
	}
	h.Delete(ctx)
	return nil
}

func (d setupDoodad) setup(
	ctx context.Context,
	b *Bot,
	h InteractionHandler,
	subcommand string,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) error {
	switch subcommand {
	case "permissions get":
		return h.Reply(
			ctx,
			fmt.Sprintf(employeeRoleFormat, b.store.State().Discord.EmployeeRoleName),
		)
	case "permissions set":
		roleName, err := d.roleName(h, options)
		if err != nil {
			return err
		}
		err = b.store.Update(
			func(s *State) error {
				s.Discord.EmployeeRoleName = roleName
				return nil
			},
		)
		if err != nil {
			return commandFailed(err, "error saving role")
		}
		return h.Reply(ctx, replacingPermissions)
	case "doodads get_all":
		return h.Reply(ctx, strings.Join(b.doodads.Available(), "\n"))
	case "doodads get_loaded":
		loaded := b.doodads.Loaded()
		if len(loaded) == 0 {
			return h.Reply(ctx, noDoodadsLoadedMessage)
		}
		return h.Reply(ctx, strings.Join(loaded, "\n"))
	case "doodads load":
		name, err := requireOption(options, "doodad_name")
		if err != nil {
			return err
		}
		if err = h.Defer(ctx); err != nil {
			return err
		}
		count, err := b.LoadDoodad(ctx, name)
		if err != nil {
			return commandFailed(err, "")
		}
		if err = h.Reply(ctx, "Loaded "+name); err != nil {
			return err
		}
		return h.Reply(ctx, fmt.Sprintf(loadedCommandsFormat, count))
	case "doodads unload":
		name, err := requireOption(options, "doodad_name")
		if err != nil {
			return err
		}
		if err = h.Defer(ctx); err != nil {
			return err
		}
		count, err := b.UnloadDoodad(ctx, name)
		if err != nil {
			return commandFailed(err, "")
		}
		if err = h.Reply(ctx, "Unloaded "+name); err != nil {
			return err
		}
		return h.Reply(ctx, fmt.Sprintf(unloadedCommandsFormat, count))
	case "reload":
		if err := h.Defer(ctx); err != nil {
			return err
		}
		if err := b.store.Reload(); err != nil {
			return commandFailed(err, "error reloading config")
		}
		return h.Reply(ctx, reloadedConfigMessage)
	default:
		return fmt.Errorf("%w: setup %s", ErrUnknownCommand, subcommand)
	}
}

// roleName resolves the role option to the role's name
func (setupDoodad) roleName(
	h InteractionHandler,
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) (string, error) {
	roleID, err := requireOption(options, "role")
	if err != nil {
		return "", err
	}
	data := h.GetInteraction().ApplicationCommandData()
	if data.Resolved != nil {
		if role, ok := data.Resolved.Roles[roleID]; ok && role != nil {
			return role.Name, nil
		}
	}
	return "", commandFailed(fmt.Errorf("role %s not found", roleID), "")
}

func (setupDoodad) Autocomplete(
	_ context.Context,
	b *Bot,
	h InteractionHandler,
) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	path, options := interactionOptions(h.GetInteraction())
	focused := focusedOption(options)
	if focused == nil || focused.Name != "doodad_name" {
		return nil, nil
	}

	var names []string
	switch strings.Join(path, " ") {
	case "doodads load":
		names = b.doodads.Unloaded()
	case "doodads unload":
		names = b.doodads.Loaded()
	default:
		return nil, nil
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(names))
	for _, name := range names {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
	}
	return filterChoices(optionString(options, focused.Name), choices), nil
}
