package discordblue

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"golang.org/x/crypto/argon2"
	"log/slog"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

const loggerContextKey contextKey = "logger"

// noLinesMessage is sent in place of an empty reply
const noLinesMessage = "No lines to send"

var (
	argon2Time    uint32 = 1
	argon2Memory  uint32 = 64 * 1024
	argon2Threads uint8  = 4
	argon2KeyLen  uint32 = 32
)

var (
	schoolKeySeparators = regexp.MustCompile(`[\s\p{Z}-]+`)
	schoolKeyNonWord    = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
	schoolKeyRepeats    = regexp.MustCompile(`_+`)
)

type contextKey string

// WithLogger returns a new context with the given logger added.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		logger = slog.Default()
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// ContextLogger returns a logger from the given context if one
// is present, and a boolean indicating whether a logger was found.
func ContextLogger(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(loggerContextKey).(*slog.Logger)
	return logger, ok
}

// loggerFrom returns the context logger, or fallback when the context
// doesn't carry one.
func loggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ContextLogger(ctx); ok && logger != nil {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// structToSlogValue converts a struct to a slog.Value, using the struct's
// JSON tag as the key for each field, if set.
// If the `log` tag is set, the value specified will override the
// field's actual value. Ex: `log:"REDACTED"` will cause "REDACTED" to
// be shown as the field's value.
func structToSlogValue(v any) slog.Value {
	typ := reflect.TypeOf(v)
	if typ == nil {
		return slog.AnyValue(nil)
	}
	val := reflect.ValueOf(v)

	if typ.Kind() == reflect.Ptr {
		if val.IsNil() {
			return slog.AnyValue(nil)
		}
		val = val.Elem()
		typ = typ.Elem()
	}

	if typ.Kind() != reflect.Struct {
		return slog.AnyValue(v)
	}

	var groupAttrs []slog.Attr

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		key, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if key == "" {
			key = field.Name
		}

		fv := val.Field(i)
		if !fv.CanInterface() {
			continue
		}

		if logTag := field.Tag.Get("log"); logTag != "" {
			groupAttrs = append(groupAttrs, slog.String(key, logTag))
			continue
		}

		switch fv.Kind() {
		case reflect.Ptr, reflect.Interface:
			if fv.IsNil() {
				continue
			}
		case reflect.Map, reflect.Slice:
			if fv.Len() == 0 {
				continue
			}
		case reflect.String:
			if fv.Len() == 0 {
				continue
			}
		default:
		}

		groupAttrs = append(
			groupAttrs,
			slog.Attr{Key: key, Value: structToSlogValue(fv.Interface())},
		)
	}
	return slog.GroupValue(groupAttrs...)
}

func interactionLogAttrs(i discordgo.InteractionCreate) []any {
	logAttrs := []any{
		"id", i.ID,
		"type", i.Type.String(),
	}
	if i.Type == discordgo.InteractionApplicationCommand ||
		i.Type == discordgo.InteractionApplicationCommandAutocomplete {
		logAttrs = append(logAttrs, "command", i.ApplicationCommandData().Name)
	}
	if i.ChannelID != "" {
		logAttrs = append(logAttrs, "channel_id", i.ChannelID)
	}
	if i.GuildID != "" {
		logAttrs = append(logAttrs, "guild_id", i.GuildID)
	}
	return logAttrs
}

// interactionOptions flattens the options of a slash command interaction,
// descending into subcommand groups and subcommands. The returned path
// holds the names of the subcommand group and subcommand invoked, if any.
func interactionOptions(
	i *discordgo.InteractionCreate,
) (path []string, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	options = map[string]*discordgo.ApplicationCommandInteractionDataOption{}
	current := i.ApplicationCommandData().Options
	for len(current) > 0 {
		first := current[0]
		if first.Type == discordgo.ApplicationCommandOptionSubCommandGroup ||
			first.Type == discordgo.ApplicationCommandOptionSubCommand {
			path = append(path, first.Name)
			current = first.Options
			continue
		}
		for _, opt := range current {
			options[opt.Name] = opt
		}
		break
	}
	return path, options
}

// focusedOption returns the option the user is typing into, for
// autocomplete interactions
func focusedOption(
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range options {
		if opt.Focused {
			return opt
		}
	}
	return nil
}

// optionString returns the string value of the named option, or "" if
// not present
func optionString(
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
	name string,
) string {
	opt, ok := options[name]
	if !ok || opt == nil {
		return ""
	}
	switch v := opt.Value.(type) {
	case string:
		return v
	case float64:
		// numeric options arrive as JSON numbers
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// requireOption returns the string value of the named option, or a
// MissingArgumentError if it's absent or empty
func requireOption(
	options map[string]*discordgo.ApplicationCommandInteractionDataOption,
	name string,
) (string, error) {
	v := optionString(options, name)
	if v == "" {
		return "", &MissingArgumentError{Name: name}
	}
	return v, nil
}

// interactionUser returns the [discordgo.User] associated with the
// interaction, which is on the member for guild interactions.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// WrapReplyLines splits text into messages which fit discord's message
// length limit. Newlines are kept; lines longer than the limit are broken
// at the last space before it, or mid-word if there is none. When mention
// is set, the first message is prefixed with it, and the limit is reduced
// by its length.
func WrapReplyLines(text string, mention string) []string {
	if strings.TrimSpace(text) == "" {
		text = noLinesMessage
	}
	width := discordMaxMessageLength
	if mention != "" {
		width -= utf8.RuneCountInString(mention) + 1
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
		}
		current.Reset()
		currentLen = 0
	}

	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		for _, piece := range splitLongLine(line, width) {
			pieceLen := utf8.RuneCountInString(piece)
			switch {
			case currentLen == 0:
				current.WriteString(piece)
				currentLen = pieceLen
			case currentLen+1+pieceLen <= width:
				current.WriteByte('\n')
				current.WriteString(piece)
				currentLen += 1 + pieceLen
			default:
				flush()
				current.WriteString(piece)
				currentLen = pieceLen
			}
		}
	}
	flush()

	if len(chunks) == 0 {
		chunks = []string{noLinesMessage}
	}
	if mention != "" {
		chunks[0] = mention + " " + chunks[0]
	}
	return chunks
}

func splitLongLine(line string, width int) []string {
	runes := []rune(line)
	if len(runes) <= width {
		return []string{line}
	}
	var pieces []string
	for len(runes) > width {
		cut := width
		for j := width; j > 0; j-- {
			if runes[j] == ' ' {
				cut = j
				break
			}
		}
		pieces = append(pieces, strings.TrimRight(string(runes[:cut]), " "))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		pieces = append(pieces, string(runes))
	}
	return pieces
}

// SchoolKey derives the lookup key for a school name: whitespace and
// hyphen runs become underscores, remaining non-word characters are
// dropped, and the result is lower-cased with repeated underscores
// collapsed.
func SchoolKey(name string) string {
	key := schoolKeySeparators.ReplaceAllString(name, "_")
	key = schoolKeyNonWord.ReplaceAllString(key, "")
	return schoolKeyRepeats.ReplaceAllString(strings.ToLower(key), "_")
}

// filterChoices returns up to 25 autocomplete choices whose name contains
// current (case-insensitive)
func filterChoices(
	current string,
	choices []*discordgo.ApplicationCommandOptionChoice,
) []*discordgo.ApplicationCommandOptionChoice {
	current = strings.ToLower(current)
	rv := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(choices))
	for _, c := range choices {
		if current != "" && !strings.Contains(strings.ToLower(c.Name), current) {
			continue
		}
		rv = append(rv, c)
		if len(rv) == discordMaxChoices {
			break
		}
	}
	return rv
}

// truncate shortens the input string to a specified number of characters.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// sortedKeys returns the map's keys in ascending order
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func tlsConfig(certfile string, keyfile string, minVersion uint16) (
	*tls.Config,
	error,
) {
	cert, err := tls.LoadX509KeyPair(certfile, keyfile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
		ClientAuth:   tls.NoClientCert,
	}, nil
}

// HashPassword hashes a password using Argon2id, in the PHC string format
func HashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		argon2Time,
		argon2Memory,
		argon2Threads,
		argon2KeyLen,
	)

	// Format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks if the provided password matches the stored hash
func VerifyPassword(storedHash, password string) (bool, error) {
	parts := strings.Split(storedHash, "$")
	if len(parts) != 6 {
		return false, errors.New("invalid hash format")
	}

	var memory, argonTime, threads int
	_, err := fmt.Sscanf(
		parts[3],
		"m=%d,t=%d,p=%d",
		&memory,
		&argonTime,
		&threads,
	)
	if err != nil {
		return false, errors.New("invalid hash format")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errors.New("invalid salt")
	}

	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errors.New("invalid hash")
	}

	hashToCompare := argon2.IDKey(
		[]byte(password),
		salt,
		uint32(argonTime),
		uint32(memory),
		uint8(threads),
		uint32(len(decodedHash)),
	)

	return subtle.ConstantTimeCompare(decodedHash, hashToCompare) == 1, nil
}
