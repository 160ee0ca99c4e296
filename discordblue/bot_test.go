package discordblue

import (
	"context"
	"errors"
	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testBotOption modifies the config, or the state document saved before
// the bot is created
type testBotOption func(cfg *Config, state *State)

func withState(fn func(s *State)) testBotOption {
	return func(_ *Config, state *State) {
		fn(state)
	}
}

func withConfig(fn func(cfg *Config)) testBotOption {
	return func(cfg *Config, _ *State) {
		fn(cfg)
	}
}

// DefaultTestConfig returns a config with every path under the test's
// temp directory
func DefaultTestConfig(t testing.TB) *Config {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Database = filepath.Join(tmpDir, "test.sqlite3")
	cfg.StatePath = filepath.Join(tmpDir, "config.toml")
	cfg.StartupTimeout = 30 * time.Second
	cfg.ShutdownTimeout = 30 * time.Second
	cfg.Discord.Token = "test-token"
	cfg.Discord.ApplicationID = testAppID
	cfg.Discord.LoginRetryInterval = time.Millisecond
	cfg.LLM.DataDir = filepath.Join(tmpDir, "training_data")
	cfg.LogLevel.Set(slog.LevelDebug)
	return cfg
}

// newTestBot returns a Bot with a mocked discord session, connected to
// the test guild and bot channel, with its database initialized
func newTestBot(t testing.TB, opts ...testBotOption) (*Bot, *mockDiscordSession) {
	t.Helper()
	gin.DefaultWriter = io.Discard

	cfg := DefaultTestConfig(t)
	state := State{
		Discord: DiscordState{
			GuildID:          testGuildID,
			BotChannelID:     testChannelID,
			EmployeeRoleName: testEmployeeRole,
		},
	}
	state.normalize()
	for _, opt := range opts {
		opt(cfg, &state)
	}

	store, err := LoadStateStore(cfg.StatePath, slog.Default())
	require.NoError(t, err)
	require.NoError(
		t, store.Update(
			func(s *State) error {
				*s = state
				return nil
			},
		),
	)

	bot, err := New(cfg, store)
	require.NoError(t, err)

	session := newMockDiscordSession()
	bot.discord.session = session
	bot.discord.setDestination(testGuildID, testChannelID)
	bot.discord.botUserID = testBotUserID

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	require.NoError(t, bot.initDB(ctx))
	t.Cleanup(
		func() {
			sqlDB, _ := bot.db.db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)
	return bot, session
}

func newTestUser() *discordgo.User {
	return &discordgo.User{
		ID:            testUserID,
		Username:      "testuser",
		GlobalName:    "Test User",
		Discriminator: "0",
	}
}

// newTestInteraction returns a slash command interaction from an employee
// in the bot channel
func newTestInteraction(
	t testing.TB,
	command string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	t.Helper()
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        "800000000000000001",
			AppID:     testAppID,
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   testGuildID,
			ChannelID: testChannelID,
			Token:     "interaction-token",
			Member: &discordgo.Member{
				User:  newTestUser(),
				Roles: []string{testEmployeeRoleID},
			},
			Data: discordgo.ApplicationCommandInteractionData{
				ID:      "cmd-" + command,
				Name:    command,
				Options: options,
			},
		},
	}
}

func newTestAutocomplete(
	t testing.TB,
	command string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	t.Helper()
	i := newTestInteraction(t, command, options...)
	i.Type = discordgo.InteractionApplicationCommandAutocomplete
	return i
}

func stringOption(name string, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func focusedString(name string, value string) *discordgo.ApplicationCommandInteractionDataOption {
	opt := stringOption(name, value)
	opt.Focused = true
	return opt
}

func subcommand(
	name string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:    name,
		Type:    discordgo.ApplicationCommandOptionSubCommand,
		Options: options,
	}
}

func subcommandGroup(
	name string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:    name,
		Type:    discordgo.ApplicationCommandOptionSubCommandGroup,
		Options: options,
	}
}

// runInteraction handles the interaction with a GatewayHandler backed by
// the mock session
func runInteraction(
	t testing.TB,
	bot *Bot,
	session *mockDiscordSession,
	i *discordgo.InteractionCreate,
) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	bot.handleInteraction(ctx, newGatewayHandler(session, i, slog.Default().With("test_name", t.Name())))
}

func commandNames(commands []*discordgo.ApplicationCommand) []string {
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, c.Name)
	}
	return names
}

func TestNew_InvalidDatabaseType(t *testing.T) {
	t.Parallel()
	cfg := DefaultTestConfig(t)
	cfg.DatabaseType = "mysql"
	store, err := LoadStateStore(cfg.StatePath, nil)
	require.NoError(t, err)

	_, err = New(cfg, store)
	assert.ErrorContains(t, err, "invalid database type")

	_, err = New(DefaultTestConfig(t), nil)
	assert.Error(t, err)
}

func TestNew_RestoresLoadedDoodads(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(
		t, withState(
			func(s *State) {
				s.Discord.LoadedDoodads = []string{"missing_doodad", templateDoodadName}
			},
		),
	)

	assert.Equal(t, []string{templateDoodadName}, bot.doodads.Loaded())
	assert.False(t, bot.doodads.IsLoaded("missing_doodad"))
}

func TestHandleInteraction_Hello(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	require.NoError(t, bot.doodads.Load(templateDoodadName))

	runInteraction(t, bot, session, newTestInteraction(t, cmdHello))

	assert.Equal(t, []string{"Hello World: <@" + testUserID + ">"}, session.replyContents())
}

func TestHandleInteraction_UnknownCommand(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)

	// not loaded, so it isn't routed
	runInteraction(t, bot, session, newTestInteraction(t, cmdHello))

	assert.Equal(
		t,
		[]string{"Unknown error: unknown command: hello"},
		session.replyContents(),
	)

	var logged InteractionLog
	require.NoError(t, bot.db.db.Where("command = ?", cmdHello).First(&logged).Error)
	assert.Equal(t, testUserID, logged.UserID)
	assert.Equal(t, "unknown command: hello", logged.Error)
}

func TestHandleInteraction_PermissionDenied(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	require.NoError(t, bot.doodads.Load(templateDoodadName))

	i := newTestInteraction(t, cmdHello)
	i.Member.Roles = nil
	runInteraction(t, bot, session, i)

	assert.Equal(t, []string{permissionDeniedMessage}, session.replyContents())
}

func TestHandleInteraction_DirectMessage(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	require.NoError(t, bot.doodads.Load(templateDoodadName))

	i := newTestInteraction(t, cmdHello)
	i.GuildID = ""
	i.Member = nil
	i.User = newTestUser()
	runInteraction(t, bot, session, i)

	assert.Equal(t, []string{permissionDeniedMessage}, session.replyContents())
}

func TestHandleInteraction_Ping(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)

	i := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:   "800000000000000002",
			Type: discordgo.InteractionPing,
			User: newTestUser(),
		},
	}
	runInteraction(t, bot, session, i)

	responses := session.interactionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, discordgo.InteractionResponsePong, responses[0].Type)
}

func TestHandleInteraction_IgnoresBots(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	require.NoError(t, bot.doodads.Load(templateDoodadName))

	i := newTestInteraction(t, cmdHello)
	i.Member.User.Bot = true
	runInteraction(t, bot, session, i)

	assert.Empty(t, session.interactionResponses())
}

func TestHandleInteraction_AutocompleteUnknownCommand(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)

	runInteraction(t, bot, session, newTestAutocomplete(t, "nope", focusedString("name", "")))

	responses := session.interactionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, discordgo.InteractionApplicationCommandAutocompleteResult, responses[0].Type)
	assert.Empty(t, responses[0].Data.Choices)
}

func TestOnReady(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	bot.discord.setDestination("", "")

	require.NoError(t, bot.onReady(context.Background()))

	guildID, channelID := bot.discord.destination()
	assert.Equal(t, testGuildID, guildID)
	assert.Equal(t, testChannelID, channelID)
	assert.Equal(t, []string{connectedMessage, "Loaded 3 commands"}, session.sentMessages())
	assert.Equal(t, []string{cmdSync, cmdClear, cmdSetup}, commandNames(session.lastRegistered()))
	assert.True(t, bot.commandsRegistered.Load())
}

func TestOnReady_SelectsDestination(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(
		t, withState(
			func(s *State) {
				s.Discord.GuildID = ""
				s.Discord.BotChannelID = ""
			},
		),
	)
	otherGuild := &discordgo.UserGuild{ID: "100000000000000020", Name: "Other Guild"}
	session.guilds = append(session.guilds, otherGuild)
	session.channels[otherGuild.ID] = []*discordgo.Channel{
		{ID: "100000000000000021", Name: "general", Type: discordgo.ChannelTypeGuildText},
		{ID: "100000000000000022", Name: "blue-bot", Type: discordgo.ChannelTypeGuildText},
	}

	var mu sync.Mutex
	var prompted []string
	bot.SetSelector(
		func(_ context.Context, kind string, options []string) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			prompted = append(prompted, kind)
			return len(options) - 1, nil
		},
	)

	require.NoError(t, bot.onReady(context.Background()))

	assert.Equal(t, []string{"guild", "channel"}, prompted)
	state := bot.store.State()
	assert.Equal(t, otherGuild.ID, state.Discord.GuildID)
	assert.Equal(t, "100000000000000022", state.Discord.BotChannelID)
}

func TestOnReady_InvalidSelection(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(
		t, withState(
			func(s *State) {
				s.Discord.GuildID = ""
			},
		),
	)
	bot.SetSelector(
		func(context.Context, string, []string) (int, error) {
			return 5, nil
		},
	)
	assert.ErrorContains(t, bot.onReady(context.Background()), "invalid guild selection")
}

func TestOnReady_GuildNotFound(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(
		t, withState(
			func(s *State) {
				s.Discord.GuildID = "100000000000000099"
			},
		),
	)

	err := bot.onReady(context.Background())
	assert.EqualError(t, err, "Could not find guild with ID 100000000000000099")
	assert.Empty(t, session.sentMessages())
}

func TestOnReady_ChannelNotText(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(
		t, withState(
			func(s *State) {
				s.Discord.BotChannelID = "100000000000000010"
			},
		),
	)

	err := bot.onReady(context.Background())
	assert.EqualError(t, err, "Could not find channel with ID 100000000000000010")
}

func TestOpenGateway(t *testing.T) {
	t.Parallel()

	t.Run("retries disallowed intents", func(t *testing.T) {
		t.Parallel()
		bot, session := newTestBot(t)
		session.openErrs = []error{errors.New(disallowedIntentsError)}

		require.NoError(t, bot.openGateway(context.Background()))
		opens, closes := session.calls()
		assert.Equal(t, 2, opens)
		assert.Equal(t, 1, closes)
	})

	t.Run("gives up after login attempts", func(t *testing.T) {
		t.Parallel()
		bot, session := newTestBot(
			t, withConfig(
				func(cfg *Config) {
					cfg.Discord.LoginAttempts = 2
				},
			),
		)
		session.openErrs = []error{
			errors.New(disallowedIntentsError),
			errors.New(disallowedIntentsError),
			errors.New(disallowedIntentsError),
		}

		assert.Error(t, bot.openGateway(context.Background()))
		opens, _ := session.calls()
		assert.Equal(t, 2, opens)
	})

	t.Run("other errors aren't retried", func(t *testing.T) {
		t.Parallel()
		bot, session := newTestBot(t)
		session.openErrs = []error{errors.New("websocket: close 4004: Authentication failed.")}

		assert.Error(t, bot.openGateway(context.Background()))
		opens, _ := session.calls()
		assert.Equal(t, 1, opens)
	})
}

func TestShutdown_DeletesCommands(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)

	ctx := context.Background()
	count, err := bot.syncCommands(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	require.NoError(t, bot.shutdown(ctx, &sync.WaitGroup{}))

	assert.Equal(t, []string{"Deleted 3 commands"}, session.sentMessages())
	assert.Empty(t, session.lastRegistered())
	assert.False(t, bot.commandsRegistered.Load())
	_, closes := session.calls()
	assert.Equal(t, 1, closes)
}

func TestSyncCommands_NotConnected(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	bot.discord.setDestination("", "")
	require.NoError(t, bot.doodads.Load(templateDoodadName))

	count, err := bot.syncCommands(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Nil(t, session.lastRegistered())
	assert.False(t, bot.commandsRegistered.Load())
}

func TestRun(t *testing.T) {
	t.Parallel()
	bot, session := newTestBot(t)
	bot.discord.setDestination("", "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	botErr := make(chan error, 1)
	go func() {
		botErr <- bot.Run(ctx)
	}()

	select {
	case <-bot.Ready():
	case err := <-botErr:
		t.Fatalf("error starting bot: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for bot")
	}

	assert.True(t, bot.discord.connected.Load())
	assert.Equal(t, testBotUserID, bot.discord.BotUserID())
	assert.Equal(t, discordgo.Identify{Intents: bot.config.Discord.GatewayIntents}, session.identify)

	i := newTestInteraction(
		t,
		cmdSetup,
		subcommandGroup("permissions", subcommand("get")),
	)
	session.dispatch(i)
	require.Eventually(
		t,
		func() bool {
			return len(session.replyContents()) == 1
		},
		10*time.Second,
		10*time.Millisecond,
	)
	assert.Equal(t, "Employee is the role with employee permission", session.replyContents()[0])

	bot.Stop()
	select {
	case err := <-botErr:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for shutdown")
	}

	assert.Equal(
		t,
		[]string{connectedMessage, "Loaded 3 commands", "Deleted 3 commands"},
		session.sentMessages(),
	)
}

func TestRun_StartupTimeoutExcludesLoginRetriesAndSelection(t *testing.T) {
	t.Parallel()
	startupTimeout := time.Second
	bot, session := newTestBot(
		t,
		withConfig(
			func(cfg *Config) {
				cfg.StartupTimeout = startupTimeout
				cfg.Discord.LoginRetryInterval = 250 * time.Millisecond
			},
		),
		withState(
			func(s *State) {
				s.Discord.GuildID = ""
				s.Discord.BotChannelID = ""
			},
		),
	)
	bot.discord.setDestination("", "")
	// 6 retries at 250ms outlast the startup timeout on their own
	for range 6 {
		session.openErrs = append(session.openErrs, errors.New(disallowedIntentsError))
	}

	var prompts atomic.Int32
	bot.SetSelector(
		func(ctx context.Context, _ string, _ []string) (int, error) {
			prompts.Add(1)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(startupTimeout + 500*time.Millisecond):
			}
			return 0, nil
		},
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	botErr := make(chan error, 1)
	go func() {
		botErr <- bot.Run(ctx)
	}()

	select {
	case <-bot.Ready():
	case err := <-botErr:
		t.Fatalf("error starting bot: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for bot")
	}

	opens, _ := session.calls()
	assert.Equal(t, 7, opens)
	assert.Equal(t, int32(2), prompts.Load())
	state := bot.store.State()
	assert.Equal(t, testGuildID, state.Discord.GuildID)
	assert.Equal(t, testChannelID, state.Discord.BotChannelID)

	bot.Stop()
	select {
	case err := <-botErr:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for shutdown")
	}
}

func TestRun_StartupTimeout(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(
		t, withConfig(
			func(cfg *Config) {
				cfg.StartupTimeout = time.Second
			},
		),
	)
	bot.discord.setDestination("", "")
	// the ready handler's result is dropped, so Run never hears back
	bot.readyErr = nil

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	err := bot.Run(ctx)
	assert.ErrorContains(t, err, "startup timed out after 1s")
}

func TestHandleRecover(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(t)
	ctx := WithLogger(context.Background(), slog.Default())

	assert.NotPanics(
		t, func() {
			bot.handleRecover(ctx, "string panic")
			bot.handleRecover(ctx, errors.New("error panic"))
			bot.handleRecover(context.Background(), 42)
		},
	)
}
