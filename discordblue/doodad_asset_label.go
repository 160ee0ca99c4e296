package discordblue

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"maps"
	"strconv"
	"strings"
)

const (
	assetLabelDoodadName = "asset_label_doodad"

	cmdAssetTag  = "asset-tag"
	cmdAddSchool = "add-school"
)

// assetLabelDoodad prints barcoded asset tags for the schools the shop
// services
type assetLabelDoodad struct{}

func (assetLabelDoodad) Name() string {
	return assetLabelDoodadName
}

func (assetLabelDoodad) Commands() []*discordgo.ApplicationCommand {
	idOption := func(n int, required bool) *discordgo.ApplicationCommandOption {
		ordinal := []string{"First", "Second", "Third"}[n]
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        fmt.Sprintf("id_%d", n),
			Description: ordinal + " ID",
			Required:    required,
		}
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdAssetTag,
			Description: "Print an asset tag",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionInteger,
					Name:         "printer_id",
					Description:  "Printer Name",
					Required:     true,
					Autocomplete: true,
				},
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "school_key",
					Description:  "School Name",
					Required:     true,
					Autocomplete: true,
				},
				idOption(0, true),
				idOption(1, false),
				idOption(2, false),
			},
		},
		{
			Name:        cmdAddSchool,
			Description: "Add a school to the list of schools",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "school_name",
					Description: "School Name",
					Required:    true,
				},
			},
		},
	}
}

func (d assetLabelDoodad) Handle(ctx context.Context, b *Bot, h InteractionHandler) error {
	if err := b.requireEmployee(ctx, h); err != nil {
		return err
	}
	switch h.GetInteraction().ApplicationCommandData().Name {
	case cmdAssetTag:
		return d.printAssetTag(ctx, b, h)
	case cmdAddSchool:
		return d.addSchool(ctx, b, h)
	default:
		return ErrUnknownCommand
	}
}

func (assetLabelDoodad) printAssetTag(ctx context.Context, b *Bot, h InteractionHandler) error {
	_, options := interactionOptions(h.GetInteraction())

	printerOption, err := requireOption(options, "printer_id")
	if err != nil {
		return err
	}
	printerID, err := strconv.Atoi(printerOption)
	if err != nil {
		return commandFailed(err, "invalid printer %q", printerOption)
	}
	schoolKey, err := requireOption(options, "school_key")
	if err != nil {
		return err
	}
	id0, err := requireOption(options, "id_0")
	if err != nil {
		return err
	}
	ids := []string{id0, optionString(options, "id_1"), optionString(options, "id_2")}

	if err = h.Defer(ctx); err != nil {
		return err
	}

	job, err := b.PrintAssetLabel(ctx, printerID, schoolKey, ids, interactionUser(h.GetInteraction()))
	if err != nil {
		return commandFailed(err, "")
	}
	return h.Reply(
		ctx,
		fmt.Sprintf("Printed %s label for %s (job %d)", job.SchoolKey, job.AssetIDs, job.PrintNodeJobID),
	)
}

func (assetLabelDoodad) addSchool(ctx context.Context, b *Bot, h InteractionHandler) error {
	i := h.GetInteraction()
	_, options := interactionOptions(i)
	name, err := requireOption(options, "school_name")
	if err != nil {
		return err
	}
	schools, err := b.AddSchool(name)
	if err != nil {
		return commandFailed(err, "error saving school")
	}

	mention := interactionUser(i).Mention()
	if err = h.Reply(
		ctx,
		fmt.Sprintf("%s Added %s to the list of schools\nCurrent Schools:\n", mention, name),
	); err != nil {
		return err
	}
	return replyLines(ctx, h, schoolLines(schools), "")
}

func (assetLabelDoodad) Autocomplete(
	_ context.Context,
	b *Bot,
	h InteractionHandler,
) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	_, options := interactionOptions(h.GetInteraction())
	focused := focusedOption(options)
	if focused == nil {
		return nil, nil
	}
	current := optionString(options, focused.Name)
	state := b.store.State().AssetLabelPrinter

	var choices []*discordgo.ApplicationCommandOptionChoice
	switch focused.Name {
	case "school_key":
		for _, key := range sortedKeys(state.Schools) {
			choices = append(
				choices,
				&discordgo.ApplicationCommandOptionChoice{Name: state.Schools[key], Value: key},
			)
		}
	case "printer_id":
		for _, name := range sortedKeys(state.Printers) {
			choices = append(
				choices,
				&discordgo.ApplicationCommandOptionChoice{Name: name, Value: state.Printers[name]},
			)
		}
		// the printer option is an integer, so what's typed isn't a name
		current = ""
	default:
		return nil, nil
	}
	return filterChoices(current, choices), nil
}

// AddSchool saves a school under its derived key, returning the updated
// schools
func (b *Bot) AddSchool(name string) (map[string]string, error) {
	name = strings.TrimSpace(name)
	key := SchoolKey(name)
	if key == "" {
		return nil, fmt.Errorf("invalid school name %q", name)
	}
	var schools map[string]string
	err := b.store.Update(
		func(s *State) error {
			s.AssetLabelPrinter.Schools[key] = name
			schools = maps.Clone(s.AssetLabelPrinter.Schools)
			return nil
		},
	)
	return schools, err
}

// schoolLines formats schools as "key: name" lines, sorted by key
func schoolLines(schools map[string]string) string {
	var sb strings.Builder
	for _, key := range sortedKeys(schools) {
		fmt.Fprintf(&sb, "%s: %s\n", key, schools[key])
	}
	return sb.String()
}

// PrintAssetLabel renders an asset label for the school and IDs, sends
// it to the printer and logs the job. The job is logged whether or not
// printing succeeds.
func (b *Bot) PrintAssetLabel(
	ctx context.Context,
	printerID int,
	schoolKey string,
	ids []string,
	user *discordgo.User,
) (*PrintJob, error) {
	if err := b.initDB(ctx); err != nil {
		return nil, err
	}
	school, ok := b.store.State().AssetLabelPrinter.Schools[schoolKey]
	if !ok {
		return nil, fmt.Errorf("unknown school %q", schoolKey)
	}

	var assetIDs []string
	for _, id := range ids {
		if id != "" {
			assetIDs = append(assetIDs, id)
		}
	}
	job := &PrintJob{
		RequestID: uuid.NewString(),
		PrinterID: printerID,
		Title:     assetLabelPrintTitle,
		SchoolKey: schoolKey,
		AssetIDs:  strings.Join(assetIDs, ","),
		State:     printJobStateSubmitted,
	}
	if user != nil {
		job.UserID = user.ID
		job.Username = user.String()
	}
	logger := loggerFrom(ctx, b.logger).With("print_job", job)

	pdf, err := AssetLabelPDF(school, assetIDs...)
	if err == nil {
		job.PrintNodeJobID, err = b.printer.Print(
			ctx, PrintRequest{
				PrinterID: printerID,
				Title:     assetLabelPrintTitle,
				PDF:       pdf,
				Copies:    1,
			},
		)
	}
	if err != nil {
		job.State = printJobStateFailed
		job.Error = err.Error()
	}

	if _, dbErr := b.db.Create(context.WithoutCancel(ctx), job); dbErr != nil {
		logger.ErrorContext(ctx, "error logging print job", tint.Err(dbErr))
	}
	if err != nil {
		return job, err
	}
	logger.InfoContext(ctx, "printed asset label")
	return job, nil
}
