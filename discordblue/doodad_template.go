package discordblue

import (
	"context"
	"github.com/bwmarrin/discordgo"
)

const (
	templateDoodadName = "template_doodad"
	cmdHello           = "hello"
)

// templateDoodad is the minimal loadable doodad, a starting point for
// new ones
type templateDoodad struct{}

func (templateDoodad) Name() string {
	return templateDoodadName
}

func (templateDoodad) Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdHello,
			Description: "Hello World",
		},
	}
}

func (templateDoodad) Handle(ctx context.Context, b *Bot, h InteractionHandler) error {
	if err := b.requireEmployee(ctx, h); err != nil {
		return err
	}
	return h.Reply(ctx, "Hello World: "+interactionUser(h.GetInteraction()).Mention())
}
