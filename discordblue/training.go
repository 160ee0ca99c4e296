package discordblue

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	// AllUsers collects training data for every author, one file each
	AllUsers = "all"

	trainingDataSuffix     = "_training_data"
	trainingCollectWorkers = 4
	trainingFilePermission = 0o644
)

// TrainingMessage is a single discord message in a training conversation
type TrainingMessage struct {
	UserID    string  `json:"user_id"`
	Username  string  `json:"username"`
	Message   string  `json:"message"`
	MessageID string  `json:"message_id"`
	Timestamp float64 `json:"timestamp"`
}

// TrainingConversation is a target message with the messages leading up
// to it, and the message it replied to
type TrainingConversation struct {
	Channel string            `json:"channel"`
	Target  TrainingMessage   `json:"target"`
	Context []TrainingMessage `json:"context"`
	Replied *TrainingMessage  `json:"replied"`
}

func newTrainingMessage(m *discordgo.Message) TrainingMessage {
	tm := TrainingMessage{
		Message:   m.Content,
		MessageID: m.ID,
		Timestamp: float64(m.Timestamp.UnixMicro()) / 1e6,
	}
	if m.Author != nil {
		tm.UserID = m.Author.ID
		tm.Username = m.Author.GlobalName
	}
	return tm
}

// TrainingCollector walks the guild's message history, writing
// conversations to per-user files in the data directory
type TrainingCollector struct {
	session     DiscordSessionHandler
	store       *StateStore
	dataDir     string
	contextSize int
	logger      *slog.Logger

	// fileMu guards appends to the .jsonl files
	fileMu sync.Mutex
}

func NewTrainingCollector(
	session DiscordSessionHandler,
	store *StateStore,
	config *LLMConfig,
	logger *slog.Logger,
) *TrainingCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainingCollector{
		session:     session,
		store:       store,
		dataDir:     config.DataDir,
		contextSize: config.ContextSize,
		logger:      logger.With(loggerNameKey, "training"),
	}
}

// Collect gathers conversations for username (or AllUsers) from every
// text channel in the guild, resuming after each channel's checkpoint.
// The collected .jsonl files are merged into their .json arrays when
// finished. Returns the number of conversations collected.
func (c *TrainingCollector) Collect(ctx context.Context, guildID string, username string) (int, error) {
	logger := c.logger.With("username", username, "context_size", c.contextSize)
	logger.InfoContext(ctx, "collecting training data")

	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return 0, fmt.Errorf("error creating data dir: %w", err)
	}

	userID := ""
	if username != AllUsers {
		member, err := c.findMember(ctx, guildID, username)
		if err != nil {
			return 0, err
		}
		userID = member.User.ID
	}

	channels, err := c.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("error listing channels: %w", err)
	}

	var collected atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(trainingCollectWorkers)
	for _, channel := range channels {
		if channel.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		g.Go(
			func() error {
				n, collectErr := c.collectChannel(gctx, channel, username, userID)
				collected.Add(int64(n))
				if collectErr != nil && isForbidden(collectErr) {
					logger.WarnContext(
						gctx,
						fmt.Sprintf("Could not access channel %s", channel.ID),
						tint.Err(collectErr),
					)
					return nil
				}
				return collectErr
			},
		)
	}
	if err = g.Wait(); err != nil {
		return int(collected.Load()), err
	}

	if err = c.Merge(); err != nil {
		return int(collected.Load()), err
	}
	logger.InfoContext(ctx, "collected training data", "conversations", collected.Load())
	return int(collected.Load()), nil
}

// findMember returns the guild member whose username, global name or
// nickname matches username
func (c *TrainingCollector) findMember(
	ctx context.Context,
	guildID string,
	username string,
) (*discordgo.Member, error) {
	after := ""
	for {
		members, err := c.session.GuildMembers(
			guildID,
			after,
			discordMembersPageSize,
			discordgo.WithContext(ctx),
		)
		if err != nil {
			return nil, fmt.Errorf("error listing members: %w", err)
		}
		for _, m := range members {
			if m.User == nil {
				continue
			}
			if m.User.Username == username || m.User.GlobalName == username || m.Nick == username {
				return m, nil
			}
		}
		if len(members) < discordMembersPageSize {
			return nil, fmt.Errorf("could not find user %s", username)
		}
		after = members[len(members)-1].User.ID
	}
}

func (c *TrainingCollector) collectChannel(
	ctx context.Context,
	channel *discordgo.Channel,
	username string,
	userID string,
) (int, error) {
	logger := c.logger.With("channel_id", channel.ID, "channel", channel.Name)
	logger.InfoContext(ctx, "checking channel")

	after := "0"
	if cp, ok := c.store.State().LLMTraining.Channels[channel.ID]; ok && cp.LastMessageID != "" {
		after = cp.LastMessageID
	}

	collected := 0
	for {
		page, err := c.session.ChannelMessages(
			channel.ID,
			discordMessagesPageSize,
			"",
			after,
			"",
			discordgo.WithContext(ctx),
		)
		if err != nil {
			return collected, err
		}
		if len(page) == 0 {
			return collected, nil
		}
		slices.SortFunc(page, func(a, b *discordgo.Message) int { return compareSnowflakes(a.ID, b.ID) })

		for _, m := range page {
			after = m.ID
			if strings.TrimSpace(m.Content) == "" || m.Author == nil {
				continue
			}
			if userID != "" && m.Author.ID != userID {
				continue
			}

			conversation, convErr := c.conversation(ctx, channel, m)
			if convErr != nil {
				return collected, convErr
			}
			if err = c.appendConversation(c.outputPath(username, m.Author), conversation); err != nil {
				return collected, err
			}
			collected++
			metricTrainingConversations.WithLabelValues(channel.Name).Inc()
			logger.DebugContext(
				ctx,
				"collected conversation",
				"message_id", m.ID,
				"author", m.Author.GlobalName,
			)

			err = c.store.Update(
				func(s *State) error {
					s.LLMTraining.Channels[channel.ID] = ChannelCheckpoint{
						Name:          channel.Name,
						LastMessageID: m.ID,
					}
					return nil
				},
			)
			if err != nil {
				return collected, fmt.Errorf("error saving checkpoint: %w", err)
			}
		}
		if len(page) < discordMessagesPageSize {
			return collected, nil
		}
	}
}

// conversation builds the training conversation for m: up to
// contextSize earlier non-empty messages, oldest first, and the message
// m replied to
func (c *TrainingCollector) conversation(
	ctx context.Context,
	channel *discordgo.Channel,
	m *discordgo.Message,
) (TrainingConversation, error) {
	conv := TrainingConversation{
		Channel: channel.Name,
		Target:  newTrainingMessage(m),
		Context: []TrainingMessage{},
	}

	if c.contextSize > 0 {
		previous, err := c.session.ChannelMessages(
			channel.ID,
			c.contextSize,
			m.ID,
			"",
			"",
			discordgo.WithContext(ctx),
		)
		if err != nil {
			return conv, fmt.Errorf("error fetching context: %w", err)
		}
		slices.SortFunc(previous, func(a, b *discordgo.Message) int { return compareSnowflakes(a.ID, b.ID) })
		for _, p := range previous {
			if strings.TrimSpace(p.Content) == "" {
				continue
			}
			conv.Context = append(conv.Context, newTrainingMessage(p))
		}
	}

	if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
		refChannel := ref.ChannelID
		if refChannel == "" {
			refChannel = channel.ID
		}
		replied, err := c.session.ChannelMessage(refChannel, ref.MessageID, discordgo.WithContext(ctx))
		switch {
		case err == nil:
			tm := newTrainingMessage(replied)
			conv.Replied = &tm
		case isNotFound(err):
			c.logger.WarnContext(ctx, fmt.Sprintf("Message %s not found", ref.MessageID))
		default:
			return conv, fmt.Errorf("error fetching replied message: %w", err)
		}
	}
	return conv, nil
}

// outputPath returns the .jsonl file conversations are appended to. When
// collecting for all users, files are named for each message's author.
func (c *TrainingCollector) outputPath(username string, author *discordgo.User) string {
	name := username
	if username == AllUsers {
		name = strings.NewReplacer("_", "", ".", "").Replace(author.Username)
	}
	return filepath.Join(c.dataDir, name+trainingDataSuffix+".jsonl")
}

func (c *TrainingCollector) appendConversation(path string, conv TrainingConversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	c.fileMu.Lock()
	defer c.fileMu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, trainingFilePermission)
	if err != nil {
		return fmt.Errorf("could not write to file %s: %w", path, err)
	}
	_, err = f.Write(append(data, '\n'))
	return errors.Join(err, f.Close())
}

// Merge appends the conversations in each *_training_data.jsonl file to
// the matching .json array, then removes the .jsonl file
func (c *TrainingCollector) Merge() error {
	c.fileMu.Lock()
	defer c.fileMu.Unlock()

	files, err := filepath.Glob(filepath.Join(c.dataDir, "*"+trainingDataSuffix+".jsonl"))
	if err != nil {
		return err
	}
	for _, jsonlPath := range files {
		if err = mergeTrainingFile(jsonlPath); err != nil {
			return err
		}
		c.logger.Info(fmt.Sprintf("Converted %s to %s", jsonlPath, strings.TrimSuffix(jsonlPath, "l")))
	}
	return nil
}

func mergeTrainingFile(jsonlPath string) error {
	jsonPath := strings.TrimSuffix(jsonlPath, "l")

	added, err := readConversationLines(jsonlPath)
	if err != nil {
		return err
	}
	existing := []json.RawMessage{}
	if data, readErr := os.ReadFile(jsonPath); readErr == nil {
		if err = json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("error reading %s: %w", jsonPath, err)
		}
	} else if !errors.Is(readErr, os.ErrNotExist) {
		return readErr
	}

	merged, err := json.MarshalIndent(append(added, existing...), "", "    ")
	if err != nil {
		return err
	}
	if err = os.WriteFile(jsonPath, merged, trainingFilePermission); err != nil {
		return err
	}
	return os.Remove(jsonlPath)
}

func readConversationLines(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rv []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("invalid json in %s", path)
		}
		rv = append(rv, json.RawMessage(bytes.Clone(line)))
	}
	return rv, scanner.Err()
}

// Reset removes all collected training data and clears the channel
// checkpoints
func (c *TrainingCollector) Reset() error {
	files, err := filepath.Glob(filepath.Join(c.dataDir, "*"+trainingDataSuffix+".json*"))
	if err != nil {
		return err
	}
	for _, f := range files {
		if err = os.Remove(f); err != nil {
			return err
		}
	}
	return c.store.Update(
		func(s *State) error {
			s.LLMTraining.Channels = map[string]ChannelCheckpoint{}
			return nil
		},
	)
}

// CollectTrainingData runs a TrainingCollector against the guild saved in
// the state document, using the bot's session or a new REST-only session
// if the bot isn't connected. When reset is set, previously collected
// data and checkpoints are removed first.
func (b *Bot) CollectTrainingData(ctx context.Context, username string, reset bool) (int, error) {
	guildID := b.store.State().Discord.GuildID
	if guildID == "" {
		return 0, errors.New("discord.guild_id is not set in the state document")
	}
	session := b.discord.session
	if session == nil {
		var err error
		session, err = b.discord.newSession()
		if err != nil {
			return 0, err
		}
	}

	collector := NewTrainingCollector(session, b.store, b.config.LLM, b.logger)
	if reset {
		if err := collector.Reset(); err != nil {
			return 0, fmt.Errorf("error resetting training data: %w", err)
		}
	}
	return collector.Collect(ctx, guildID, username)
}

// LoadConversations reads the conversations for username from the data
// directory's .json and .jsonl files
func LoadConversations(dataDir string, username string) ([]TrainingConversation, error) {
	files, err := filepath.Glob(filepath.Join(dataDir, username+trainingDataSuffix+".json*"))
	if err != nil {
		return nil, err
	}
	var rv []TrainingConversation
	for _, path := range files {
		var raw []json.RawMessage
		if strings.HasSuffix(path, ".jsonl") {
			raw, err = readConversationLines(path)
		} else {
			var data []byte
			data, err = os.ReadFile(path)
			if err == nil {
				err = json.Unmarshal(data, &raw)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", path, err)
		}
		for _, r := range raw {
			var conv TrainingConversation
			if err = json.Unmarshal(r, &conv); err != nil {
				return nil, fmt.Errorf("error decoding conversation in %s: %w", path, err)
			}
			rv = append(rv, conv)
		}
	}
	return rv, nil
}

// TrainingUsernames returns the usernames with collected data in dataDir
func TrainingUsernames(dataDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dataDir, "*"+trainingDataSuffix+".json*"))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range files {
		name, _, _ := strings.Cut(filepath.Base(f), trainingDataSuffix)
		if name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// compareSnowflakes orders discord IDs numerically
func compareSnowflakes(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}
