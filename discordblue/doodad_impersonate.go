package discordblue

import (
	"context"
	"errors"
	"github.com/bwmarrin/discordgo"
)

const (
	impersonateDoodadName = "impersonate_doodad"
	cmdImpersonate        = "impersonate"
)

// impersonateDoodad replies to a message as a user would, using the
// model fine-tuned on that user's messages
type impersonateDoodad struct{}

func (impersonateDoodad) Name() string {
	return impersonateDoodadName
}

func (impersonateDoodad) Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdImpersonate,
			Description: "Reply to a message as another user",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "username",
					Description:  "User to impersonate",
					Required:     true,
					Autocomplete: true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message",
					Description: "Message to reply to",
					Required:    true,
				},
			},
		},
	}
}

func (impersonateDoodad) Handle(ctx context.Context, b *Bot, h InteractionHandler) error {
	if err := b.requireEmployee(ctx, h); err != nil {
		return err
	}
	_, options := interactionOptions(h.GetInteraction())
	username, err := requireOption(options, "username")
	if err != nil {
		return err
	}
	message, err := requireOption(options, "message")
	if err != nil {
		return err
	}

	if err = h.Defer(ctx); err != nil {
		return err
	}
	reply, err := b.llm.Generate(ctx, username, message)
	switch {
	case errors.Is(err, ErrModelNotFound):
		return h.Reply(ctx, modelNotFoundMessage)
	case err != nil:
		return commandFailed(err, "")
	}
	return replyLines(ctx, h, reply, "")
}

func (impersonateDoodad) Autocomplete(
	_ context.Context,
	b *Bot,
	h InteractionHandler,
) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	_, options := interactionOptions(h.GetInteraction())
	focused := focusedOption(options)
	if focused == nil || focused.Name != "username" {
		return nil, nil
	}
	models := b.store.State().LLMTraining.Models
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(models))
	for _, username := range sortedKeys(models) {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: username, Value: username})
	}
	return filterChoices(optionString(options, focused.Name), choices), nil
}
