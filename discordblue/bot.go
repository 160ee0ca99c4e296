package discordblue

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

const (
	connectedMessage        = "Connected"
	loadedCommandsFormat    = "Loaded %d commands"
	unloadedCommandsFormat  = "Unloaded %d commands"
	deletedCommandsFormat   = "Deleted %d commands"
	guildNotFoundFormat     = "Could not find guild with ID %s"
	channelNotFoundFormat   = "Could not find channel with ID %s"
	discordAuthorizeURLBase = "https://discord.com/api/oauth2/authorize?client_id=%s&permissions=8&scope=bot"

	shutdownAnnouncementInterval = 10 * time.Second
)

// Bot is the discord bot: it owns the gateway session, the doodads
// providing its slash commands, and the clients those commands use.
type Bot struct {
	config  *Config
	store   *StateStore
	logger  *slog.Logger
	discord *Discord
	db      *database
	api     *API
	printer *PrintNode
	shippo  *Shippo
	llm     *LLM
	doodads *DoodadRegistry

	// selector picks the guild or channel when none is saved
	selector Selector

	runMu       sync.Mutex
	signalStop  chan struct{}
	signalReady chan struct{}
	readyErr    chan error

	// selecting receives true when the selector starts waiting on the
	// operator, and false when it returns
	selecting chan bool
	startedAt   time.Time

	commandsRegistered atomic.Bool
	registeredCount    atomic.Int64

	// getInteractionHandlerFunc returns an InteractionHandler for an
	// incoming gateway interaction
	getInteractionHandlerFunc func(
		ctx context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler
}

// New creates a Bot from the given configuration and state store
func New(config *Config, store *StateStore) (*Bot, error) {
	var errs []error

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
		//
	default:
		errs = append(
			errs,
			errors.New("invalid database type (must be 'sqlite' or 'postgres')"),
		)
	}
	if store == nil {
		return nil, errors.New("state store required")
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &Bot{
		config:      config,
		store:       store,
		signalReady: make(chan struct{}, 1),
		readyErr:    make(chan error, 1),
		selecting:   make(chan bool, 4),
	}

	b.logger = slog.New(newComponentHandler(config.LogLevel))
	slog.SetDefault(b.logger)

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		newComponentHandler(config.Discord.DiscordGoLogLevel).WithAttrs(
			[]slog.Attr{slog.String(loggerNameKey, "discordgo")},
		),
	)

	config.Discord.httpClient = config.HTTPClient
	b.discord = newDiscord(
		config.Discord,
		newComponentLogger(config.Discord.LogLevel, "discord"),
	)

	b.printer = newPrintNode(config.PrintNode, config.HTTPClient)
	b.shippo = newShippo(config.Shippo, config.HTTPClient)

	llm, err := newLLM(config.LLM, store, config.HTTPClient)
	errs = append(errs, err)
	b.llm = llm

	b.doodads = NewDoodadRegistry(
		[]Doodad{setupDoodad{}},
		templateDoodad{},
		assetLabelDoodad{},
		impersonateDoodad{},
	)
	for _, name := range store.State().Discord.LoadedDoodads {
		if loadErr := b.doodads.Load(name); loadErr != nil {
			b.logger.Warn("unable to restore doodad", "doodad", name, tint.Err(loadErr))
		}
	}

	store.OnReload(
		func(s State) {
			b.logger.Info(
				"state reloaded",
				"guild_id", s.Discord.GuildID,
				"bot_channel_id", s.Discord.BotChannelID,
			)
		},
	)

	api, err := newAPI(b, config.API)
	errs = append(errs, err)
	b.api = api

	return b, errors.Join(errs...)
}

// SetSelector sets the function used to choose a guild or channel when
// the state document doesn't name one
func (b *Bot) SetSelector(s Selector) {
	b.selector = s
}

func (b *Bot) ValidateConfig() error {
	return structValidator.Struct(b.config)
}

// Store returns the bot's state store
func (b *Bot) Store() *StateStore {
	return b.store
}

// Doodads returns the bot's doodad registry
func (b *Bot) Doodads() *DoodadRegistry {
	return b.doodads
}

// LLM returns the bot's fine-tuning and generation client
func (b *Bot) LLM() *LLM {
	return b.llm
}

func (b *Bot) PrintNode() *PrintNode {
	return b.printer
}

// Ready returns a channel which receives a value once the bot has
// connected and registered its commands
func (b *Bot) Ready() <-chan struct{} {
	return b.signalReady
}

// Stop signals a running bot to shut down
func (b *Bot) Stop() {
	if b.signalStop == nil {
		return
	}
	select {
	case b.signalStop <- struct{}{}:
	default:
	}
}

// Run connects to discord and handles interactions until ctx is canceled
// or Stop is called, then shuts down gracefully.
func (b *Bot) Run(ctx context.Context) error {
	// prevents concurrent runs
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.signalStop = make(chan struct{}, 1)
	b.startedAt = time.Now()
	logger := b.logger

	if err := b.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	ctx = WithLogger(ctx, logger)
	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", b.config))

	// this is the 'runtime' context, which triggers a graceful shutdown
	// when canceled
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-b.signalStop:
			logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	runtimeWG := &sync.WaitGroup{}

	dbCtx, dbCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer dbCancel()

	if err := b.initDB(dbCtx); err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}

	if b.config.API.Enabled {
		go func() {
			httpErr := b.api.Serve(ctx)
			if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
				logger.ErrorContext(ctx, "error serving api HTTP", tint.Err(httpErr))
			}
		}()
	}

	runtimeWG.Add(1)
	go func() {
		defer runtimeWG.Done()
		if watchErr := b.store.Watch(ctx); watchErr != nil {
			logger.ErrorContext(ctx, "error watching state", tint.Err(watchErr))
		}
	}()

	if err := b.initDiscordSession(ctx, runtimeWG); err != nil {
		cancel()
		return errors.Join(err, b.shutdown(ctx, runtimeWG))
	}

	// the login retry loop is bounded by discord.login_attempts, not the
	// startup timeout
	if err := b.openGateway(ctx); err != nil {
		cancel()
		return errors.Join(err, b.shutdown(ctx, runtimeWG))
	}

	if err := b.waitReady(ctx); err != nil {
		logger.ErrorContext(ctx, "ready error", tint.Err(err))
		cancel()
		return errors.Join(err, b.shutdown(ctx, runtimeWG))
	}

	select {
	case b.signalReady <- struct{}{}:
	default:
	}
	logger.InfoContext(ctx, "ready", "startup_duration", time.Since(b.startedAt))

	// block until something cancels the main runtime context - generally
	// from an interrupt, or the `/api/admin/quit` endpoint
	<-ctx.Done()

	return b.shutdown(ctx, runtimeWG)
}

// openGateway opens the discord websocket connection. When discord rejects
// the requested intents, the connection is retried up to
// discord.login_attempts times.
func (b *Bot) openGateway(ctx context.Context) error {
	logger := loggerFrom(ctx, b.logger)
	attempts := max(b.config.Discord.LoginAttempts, 1)

	for attempt := 1; ; attempt++ {
		metricLoginAttempts.Inc()
		logger.InfoContext(ctx, "connecting to discord", "attempt", attempt)
		err := b.discord.session.Open()
		if err == nil {
			return nil
		}
		if !isDisallowedIntents(err) || attempt >= attempts {
			logger.ErrorContext(ctx, "error connecting to discord", tint.Err(err))
			return fmt.Errorf("error connecting to discord: %w", err)
		}

		logger.ErrorContext(ctx, "Privileged intents required", tint.Err(err))
		logger.ErrorContext(
			ctx,
			"Please enable intents in the discord developer portal",
			"url", fmt.Sprintf(discordAuthorizeURLBase, b.config.Discord.ApplicationID),
		)
		// discordgo leaves the session half-open after a failed identify
		_ = b.discord.session.Close()

		select {
		case <-ctx.Done():
			return fmt.Errorf("error connecting to discord: %w", ctx.Err())
		case <-time.After(b.config.Discord.LoginRetryInterval):
		}
	}
}

// waitReady waits for the ready event to be handled. The startup timeout
// starts once the gateway is open, and is paused while the selector waits
// on the operator.
func (b *Bot) waitReady(ctx context.Context) error {
	timer := time.NewTimer(b.config.StartupTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.New("startup cancelled")
		case <-timer.C:
			return fmt.Errorf("startup timed out after %s", b.config.StartupTimeout)
		case selecting := <-b.selecting:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			if !selecting {
				timer.Reset(b.config.StartupTimeout)
			}
		case err := <-b.readyErr:
			return err
		}
	}
}

func (b *Bot) notifySelecting(selecting bool) {
	select {
	case b.selecting <- selecting:
	default:
	}
}

func (b *Bot) initDiscordSession(ctx context.Context, runtimeWG *sync.WaitGroup) error {
	if b.discord.session == nil {
		session, err := b.discord.newSession()
		if err != nil {
			return fmt.Errorf("error creating discord session: %w", err)
		}
		b.discord.session = session
	}

	for _, h := range b.discord.removeHandlers {
		h()
	}

	b.discord.session.SetIdentify(discordgo.Identify{Intents: b.config.Discord.GatewayIntents})

	if b.getInteractionHandlerFunc == nil {
		b.getInteractionHandlerFunc = func(
			_ context.Context,
			i *discordgo.InteractionCreate,
		) InteractionHandler {
			return newGatewayHandler(b.discord.session, i, b.discord.logger)
		}
	}

	b.discord.removeHandlers = []func(){
		b.discord.session.AddHandler(b.discord.handlerConnect()),
		b.discord.session.AddHandler(b.discord.handlerDisconnect()),
		b.discord.session.AddHandler(b.handlerReady(ctx)),
		b.discord.session.AddHandler(
			func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
				handler := b.getInteractionHandlerFunc(ctx, i)
				runtimeWG.Add(1)
				go func() {
					defer runtimeWG.Done()
					defer func() {
						if rc := recover(); rc != nil {
							b.handleRecover(WithLogger(ctx, handler.Logger()), rc)
						}
					}()
					b.handleInteraction(ctx, handler)
				}()
			},
		),
	}
	return nil
}

func (b *Bot) handlerReady(ctx context.Context) func(s *discordgo.Session, r *discordgo.Ready) {
	return func(_ *discordgo.Session, r *discordgo.Ready) {
		metricGatewayEvents.WithLabelValues("ready").Inc()
		if r.User != nil {
			b.discord.mu.Lock()
			b.discord.botUserID = r.User.ID
			b.discord.mu.Unlock()
			b.discord.logger.InfoContext(
				ctx,
				fmt.Sprintf("Logged in as %s (ID: %s)", r.User.String(), r.User.ID),
			)
		}
		// REST calls can't run on the event goroutine with SyncEvents set
		go func() {
			err := b.onReady(ctx)
			select {
			case b.readyErr <- err:
			default:
				if err != nil {
					b.logger.ErrorContext(ctx, "error handling ready event", tint.Err(err))
				}
			}
		}()
	}
}

// onReady resolves the destination guild and bot channel, announces the
// connection and registers the loaded doodads' commands.
func (b *Bot) onReady(ctx context.Context) error {
	logger := loggerFrom(ctx, b.logger)

	guildID, err := b.resolveGuild(ctx)
	if err != nil {
		logger.ErrorContext(ctx, err.Error())
		return err
	}
	channelID, err := b.resolveChannel(ctx, guildID)
	if err != nil {
		logger.ErrorContext(ctx, err.Error())
		return err
	}
	b.discord.setDestination(guildID, channelID)

	if err = b.discord.sendBotChannel(connectedMessage); err != nil {
		return fmt.Errorf("error sending connected message: %w", err)
	}

	count, err := b.syncCommands(ctx)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, fmt.Sprintf(loadedCommandsFormat, count))
	if err = b.discord.sendBotChannel(fmt.Sprintf(loadedCommandsFormat, count)); err != nil {
		return fmt.Errorf("error sending loaded message: %w", err)
	}
	return nil
}

// resolveGuild returns the guild ID saved in the state document, after
// verifying the bot is a member. When none is saved, the guild is chosen
// with the selector and saved.
func (b *Bot) resolveGuild(ctx context.Context) (string, error) {
	guilds, err := b.userGuilds()
	if err != nil {
		return "", fmt.Errorf("error listing guilds: %w", err)
	}

	guildID := b.store.State().Discord.GuildID
	if guildID != "" {
		for _, g := range guilds {
			if g.ID == guildID {
				return g.ID, nil
			}
		}
		return "", fmt.Errorf(guildNotFoundFormat, guildID)
	}

	names := make([]string, 0, len(guilds))
	for _, g := range guilds {
		names = append(names, g.Name)
	}
	idx, err := b.selectOption(ctx, "guild", names)
	if err != nil {
		return "", err
	}
	selected := guilds[idx]
	err = b.store.Update(
		func(s *State) error {
			s.Discord.GuildID = selected.ID
			return nil
		},
	)
	if err != nil {
		return "", fmt.Errorf("error saving guild: %w", err)
	}
	return selected.ID, nil
}

// resolveChannel returns the bot channel ID saved in the state document,
// after verifying it's a text channel in the guild. When none is saved,
// the channel is chosen with the selector and saved.
func (b *Bot) resolveChannel(ctx context.Context, guildID string) (string, error) {
	channels, err := b.textChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("error listing channels: %w", err)
	}

	channelID := b.store.State().Discord.BotChannelID
	if channelID != "" {
		for _, c := range channels {
			if c.ID == channelID {
				return c.ID, nil
			}
		}
		return "", fmt.Errorf(channelNotFoundFormat, channelID)
	}

	names := make([]string, 0, len(channels))
	for _, c := range channels {
		names = append(names, c.Name)
	}
	idx, err := b.selectOption(ctx, "channel", names)
	if err != nil {
		return "", err
	}
	selected := channels[idx]
	err = b.store.Update(
		func(s *State) error {
			s.Discord.BotChannelID = selected.ID
			return nil
		},
	)
	if err != nil {
		return "", fmt.Errorf("error saving channel: %w", err)
	}
	return selected.ID, nil
}

func (b *Bot) selectOption(ctx context.Context, kind string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("no %ss available", kind)
	}
	if b.selector == nil {
		return 0, fmt.Errorf("no %s configured, and no selector available", kind)
	}
	b.notifySelecting(true)
	idx, err := b.selector(ctx, kind, options)
	b.notifySelecting(false)
	if err != nil {
		return 0, fmt.Errorf("error selecting %s: %w", kind, err)
	}
	if idx < 0 || idx >= len(options) {
		return 0, fmt.Errorf("invalid %s selection: %d", kind, idx)
	}
	return idx, nil
}

// userGuilds returns every guild the bot is a member of
func (b *Bot) userGuilds() ([]*discordgo.UserGuild, error) {
	var guilds []*discordgo.UserGuild
	after := ""
	for {
		page, err := b.discord.session.UserGuilds(discordGuildsPageSize, "", after, false)
		if err != nil {
			return nil, err
		}
		guilds = append(guilds, page...)
		if len(page) < discordGuildsPageSize {
			return guilds, nil
		}
		after = page[len(page)-1].ID
	}
}

// textChannels returns the guild's text channels
func (b *Bot) textChannels(guildID string) ([]*discordgo.Channel, error) {
	channels, err := b.discord.session.GuildChannels(guildID)
	if err != nil {
		return nil, err
	}
	rv := make([]*discordgo.Channel, 0, len(channels))
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildText {
			rv = append(rv, c)
		}
	}
	return rv, nil
}

// syncCommands registers the commands of all loaded doodads with the
// destination guild, returning the number registered. If the bot isn't
// connected, nothing is registered and the number of commands which would
// be is returned.
func (b *Bot) syncCommands(ctx context.Context) (int, error) {
	commands := b.doodads.Commands()
	guildID, _ := b.discord.destination()
	if guildID == "" || b.discord.session == nil {
		loggerFrom(ctx, b.logger).WarnContext(ctx, "not connected, skipping command registration")
		return len(commands), nil
	}

	created, err := b.discord.registerCommands(guildID, commands)
	if err != nil {
		return 0, err
	}
	b.commandsRegistered.Store(true)
	b.registeredCount.Store(int64(len(created)))
	return len(created), nil
}

// clearCommands removes the bot's guild commands and announces how many
// were deleted
func (b *Bot) clearCommands(ctx context.Context) error {
	guildID, _ := b.discord.destination()
	if guildID == "" || !b.commandsRegistered.Load() {
		return nil
	}
	count := b.registeredCount.Load()
	if _, err := b.discord.registerCommands(
		guildID,
		[]*discordgo.ApplicationCommand{},
		discordgo.WithContext(ctx),
	); err != nil {
		return err
	}
	b.commandsRegistered.Store(false)
	b.registeredCount.Store(0)
	loggerFrom(ctx, b.logger).InfoContext(ctx, fmt.Sprintf(deletedCommandsFormat, count))
	return b.discord.sendBotChannel(
		fmt.Sprintf(deletedCommandsFormat, count),
		discordgo.WithContext(ctx),
	)
}

// shutdown removes the bot's commands, closes the discord session and
// the API server. If that doesn't finish within the shutdown timeout,
// connections are closed forcefully.
func (b *Bot) shutdown(ctx context.Context, runtimeWG *sync.WaitGroup) error {
	logger := b.logger
	logger.WarnContext(ctx, "shutting down")

	shutdownStart := time.Now()
	shutdownDeadline := shutdownStart.Add(b.config.ShutdownTimeout)

	announcementTicker := time.NewTicker(shutdownAnnouncementInterval)
	defer announcementTicker.Stop()

	closeCtx, closeCancel := context.WithDeadline(context.Background(), shutdownDeadline)
	defer closeCancel()

	gracefulShutdownCh := make(chan struct{}, 1)
	go func() {
		// wait for in-flight interactions to finish
		runtimeWG.Wait()
		stopWG := &sync.WaitGroup{}

		if b.api != nil && b.api.httpServer != nil {
			stopWG.Add(1)
			go func() {
				defer stopWG.Done()
				logger.InfoContext(ctx, "stopping http server")
				_ = b.api.httpServer.Shutdown(closeCtx)
				logger.InfoContext(ctx, "http server stopped")
			}()
		}

		if b.discord.session != nil {
			stopWG.Add(1)
			go func() {
				defer stopWG.Done()
				if err := b.clearCommands(closeCtx); err != nil {
					logger.ErrorContext(ctx, "error deleting commands", tint.Err(err))
				}
				logger.InfoContext(ctx, "closing discord session")
				_ = b.discord.session.Close()
				for _, h := range b.discord.removeHandlers {
					h()
				}
				b.discord.removeHandlers = nil
				logger.InfoContext(ctx, "discord session closed")
			}()
		}

		stopWG.Wait()
		if b.db != nil {
			if sqlDB, err := b.db.db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		gracefulShutdownCh <- struct{}{}
	}()

	for {
		select {
		case <-gracefulShutdownCh:
			logger.InfoContext(
				ctx,
				"shutdown complete",
				"shutdown_duration", time.Since(shutdownStart),
			)
			return nil
		case <-announcementTicker.C:
			logger.Warn(
				fmt.Sprintf("time until hard shutdown: %s", time.Until(shutdownDeadline)),
			)
		case <-closeCtx.Done():
			logger.Warn("shutdown did not finish in time, forcing close")
			if b.api != nil && b.api.httpServer != nil {
				go func() {
					_ = b.api.httpServer.Close()
				}()
			}
			return errors.New("shutdown did not finish in time")
		}
	}
}

// handleInteraction dispatches an incoming interaction to the doodad
// owning the command, mapping command errors to replies.
func (b *Bot) handleInteraction(ctx context.Context, handler InteractionHandler) {
	i := handler.GetInteraction()
	logger := handler.Logger()

	discordUser := interactionUser(i)
	if discordUser == nil {
		logger.ErrorContext(ctx, "no user found in interaction")
		return
	}

	ctx = WithLogger(ctx, logger)
	logger.InfoContext(ctx, "received new interaction", "user", discordUser.String())

	interactionLog, err := newInteractionLog(i, discordUser)
	if err != nil {
		logger.ErrorContext(ctx, "error marshaling interaction", tint.Err(err))
	}

	wg := &sync.WaitGroup{}
	defer wg.Wait()

	var commandErr error
	defer func() {
		if b.db == nil || interactionLog == nil {
			return
		}
		if commandErr != nil {
			interactionLog.Error = commandErr.Error()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, createErr := b.db.Create(context.WithoutCancel(ctx), interactionLog); createErr != nil {
				logger.ErrorContext(ctx, "error logging interaction", tint.Err(createErr))
			}
		}()
	}()

	if discordUser.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring")
		return
	}

	switch i.Type {
	case discordgo.InteractionPing:
		_ = handler.Respond(ctx, &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		metricInteractions.WithLabelValues("command", name).Inc()
		start := time.Now()

		doodad, ok := b.doodads.Lookup(name)
		if ok {
			commandErr = doodad.Handle(ctx, b, handler)
		} else {
			commandErr = fmt.Errorf("%w: %s", ErrUnknownCommand, name)
		}
		metricCommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		if commandErr != nil {
			b.handleCommandError(ctx, handler, name, commandErr)
		}
	case discordgo.InteractionApplicationCommandAutocomplete:
		name := i.ApplicationCommandData().Name
		metricInteractions.WithLabelValues("autocomplete", name).Inc()

		var choices []*discordgo.ApplicationCommandOptionChoice
		doodad, ok := b.doodads.Lookup(name)
		if ac, isAC := doodad.(Autocompleter); ok && isAC {
			choices, err = ac.Autocomplete(ctx, b, handler)
			if err != nil {
				logger.WarnContext(ctx, "autocomplete error", tint.Err(err))
			}
		}
		if err = respondChoices(ctx, handler, choices); err != nil {
			logger.ErrorContext(ctx, "error responding to autocomplete", tint.Err(err))
		}
	default:
		metricInteractions.WithLabelValues(i.Type.String(), "").Inc()
		logger.DebugContext(ctx, "ignoring interaction")
	}
}

// handleCommandError replies with the user facing message for err
func (b *Bot) handleCommandError(
	ctx context.Context,
	handler InteractionHandler,
	command string,
	err error,
) {
	message := commandErrorMessage(err)
	metricCommandErrors.WithLabelValues(command).Inc()
	handler.Logger().WarnContext(ctx, message, "command", command, tint.Err(err))
	if replyErr := handler.Reply(ctx, message); replyErr != nil {
		handler.Logger().ErrorContext(ctx, "error sending error reply", tint.Err(replyErr))
	}
}

// handleRecover logs a panic recovered while handling an interaction,
// with a stack trace
func (*Bot) handleRecover(ctx context.Context, rc any) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = slog.Default()
	}
	stackTrace := string(debug.Stack())
	switch v := rc.(type) {
	case error:
		logger.ErrorContext(ctx, "recovered from panic", tint.Err(v), "stack_trace", stackTrace)
	case string:
		logger.ErrorContext(
			ctx,
			"recovered from panic",
			tint.Err(errors.New(v)),
			"stack_trace", stackTrace,
		)
	default:
		logger.ErrorContext(ctx, "recovered from panic", "panic_arg", rc, "stack_trace", stackTrace)
	}
}
