package discordblue

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"strings"
	"sync"
)

//nolint:lll // struct tags can't be split
type InteractionLog struct {
	ModelUintID
	InteractionID string `json:"interaction_id" gorm:"not null"`
	Type          string `json:"type" gorm:"type:string"`
	Command       string `json:"command" gorm:"type:string;index"`
	UserID        string `json:"user_id" gorm:"not null"`
	Username      string `json:"username" gorm:"type:string"`
	GuildID       string `json:"guild_id" gorm:"type:string"`
	ChannelID     string `json:"channel_id" gorm:"type:string"`
	Payload       string `json:"payload" gorm:"type:string"`
	Error         string `json:"error,omitempty" gorm:"type:string"`
	CreatedAt     int64  `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
}

func newInteractionLog(
	i *discordgo.InteractionCreate,
	u *discordgo.User,
) (*InteractionLog, error) {
	p, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("error marshaling interaction: %w", err)
	}

	interactionLog := &InteractionLog{
		InteractionID: i.ID,
		Type:          i.Type.String(),
		UserID:        u.ID,
		Username:      u.String(),
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
		Payload:       string(p),
	}
	if i.Type == discordgo.InteractionApplicationCommand ||
		i.Type == discordgo.InteractionApplicationCommandAutocomplete {
		interactionLog.Command = commandPath(i)
	}
	return interactionLog, nil
}

// commandPath returns the invoked command with any subcommand group and
// subcommand, ex: "setup doodads load"
func commandPath(i *discordgo.InteractionCreate) string {
	path, _ := interactionOptions(i)
	return strings.Join(append([]string{i.ApplicationCommandData().Name}, path...), " ")
}

// InteractionHandler responds to a single discord interaction.
//
// The first reply to an interaction is sent as the interaction response.
// If the interaction was deferred, the next reply edits the deferred
// response, and any later replies are sent as followup messages.
type InteractionHandler interface {
	// Respond sends an initial response to a Discord interaction.
	Respond(ctx context.Context, i *discordgo.InteractionResponse) error

	// Defer acknowledges the interaction, showing a 'thinking' state until
	// the next reply.
	Defer(ctx context.Context) error

	// Reply sends content as the response, the deferred response edit, or
	// a followup, whichever is next.
	Reply(ctx context.Context, content string) error

	// Edit modifies an existing interaction response.
	Edit(
		ctx context.Context,
		e *discordgo.WebhookEdit,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// Followup sends an additional message for the interaction
	Followup(ctx context.Context, params *discordgo.WebhookParams) (*discordgo.Message, error)

	// Delete removes an interaction response.
	Delete(ctx context.Context, opts ...discordgo.RequestOption)

	// GetInteraction returns the original InteractionCreate event.
	GetInteraction() *discordgo.InteractionCreate

	// Logger returns the logger associated with this handler.
	Logger() *slog.Logger
}

// replyState tracks how far an interaction's response has progressed
type replyState struct {
	mu        sync.Mutex
	responded bool
	deferred  bool
	edited    bool
}

// GatewayHandler implements [InteractionHandler] when receiving interactions
// via the discord websocket gateway.
type GatewayHandler struct {
	session     DiscordSessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger
	state       *replyState
}

func newGatewayHandler(
	session DiscordSessionHandler,
	i *discordgo.InteractionCreate,
	logger *slog.Logger,
) GatewayHandler {
	return GatewayHandler{
		session:     session,
		interaction: i,
		logger:      logger.With(slog.Group("interaction", interactionLogAttrs(*i)...)),
		state:       &replyState{},
	}
}

func (w GatewayHandler) Respond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	w.state.mu.Lock()
	defer w.state.mu.Unlock()
	return w.unsafeRespond(ctx, response)
}

func (w GatewayHandler) unsafeRespond(
	ctx context.Context,
	response *discordgo.InteractionResponse,
) error {
	err := w.session.InteractionRespond(w.interaction.Interaction, response)
	if err != nil {
		w.logger.ErrorContext(ctx, "error responding to interaction", tint.Err(err))
		return err
	}
	w.state.responded = true
	switch response.Type {
	case discordgo.InteractionResponseDeferredChannelMessageWithSource,
		discordgo.InteractionResponseDeferredMessageUpdate:
		w.state.deferred = true
	default:
	}
	w.logger.DebugContext(ctx, "responded to interaction")
	return nil
}

func (w GatewayHandler) Defer(ctx context.Context) error {
	return w.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		},
	)
}

func (w GatewayHandler) Reply(ctx context.Context, content string) error {
	w.state.mu.Lock()
	defer w.state.mu.Unlock()

	switch {
	case !w.state.responded:
		return w.unsafeRespond(
			ctx, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{Content: content},
			},
		)
	case w.state.deferred && !w.state.edited:
		_, err := w.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
		if err == nil {
			w.state.edited = true
		}
		return err
	default:
		_, err := w.Followup(ctx, &discordgo.WebhookParams{Content: content})
		return err
	}
}

func (w GatewayHandler) Edit(
	ctx context.Context,
	wh *discordgo.WebhookEdit,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := w.session.InteractionResponseEdit(
		w.interaction.Interaction,
		wh,
		opts...,
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error editing interaction response", tint.Err(err))
	} else {
		w.logger.DebugContext(ctx, "edited interaction")
	}
	return msg, err
}

func (w GatewayHandler) Followup(
	ctx context.Context,
	params *discordgo.WebhookParams,
) (*discordgo.Message, error) {
	msg, err := w.session.FollowupMessageCreate(w.interaction.Interaction, true, params)
	if err != nil {
		w.logger.ErrorContext(ctx, "error sending followup", tint.Err(err))
	}
	return msg, err
}

func (w GatewayHandler) Delete(ctx context.Context, opts ...discordgo.RequestOption) {
	err := w.session.InteractionResponseDelete(
		w.interaction.Interaction,
		opts...,
	)
	if err != nil {
		w.logger.ErrorContext(ctx, "error deleting interaction response", tint.Err(err))
	}
}

func (w GatewayHandler) GetInteraction() *discordgo.InteractionCreate {
	return w.interaction
}

func (w GatewayHandler) Logger() *slog.Logger {
	return w.logger
}

// replyLines sends text split by WrapReplyLines, one reply per chunk
func replyLines(ctx context.Context, h InteractionHandler, text string, mention string) error {
	for _, line := range WrapReplyLines(text, mention) {
		if err := h.Reply(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// respondChoices answers an autocomplete interaction
func respondChoices(
	ctx context.Context,
	h InteractionHandler,
	choices []*discordgo.ApplicationCommandOptionChoice,
) error {
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	return h.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionApplicationCommandAutocompleteResult,
			Data: &discordgo.InteractionResponseData{Choices: choices},
		},
	)
}
