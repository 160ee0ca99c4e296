package discordblue

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"strings"
	"testing"
)

func TestWrapReplyLines(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		text     string
		mention  string
		expected []string
	}{
		{name: "empty", text: "", expected: []string{noLinesMessage}},
		{name: "blank", text: " \n ", mention: "<@1>", expected: []string{"<@1> " + noLinesMessage}},
		{name: "short", text: "a\nb\n", expected: []string{"a\nb"}},
		{name: "mention", text: "hi", mention: "<@1>", expected: []string{"<@1> hi"}},
		{
			name:     "no spaces",
			text:     strings.Repeat("x", 2500),
			expected: []string{strings.Repeat("x", 2000), strings.Repeat("x", 500)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, WrapReplyLines(tc.text, tc.mention))
		})
	}
}

func TestWrapReplyLines_BreaksAtSpaces(t *testing.T) {
	t.Parallel()

	chunks := WrapReplyLines(strings.Repeat("word ", 500), "")
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 1999)
	assert.True(t, strings.HasSuffix(chunks[0], "word"))
	assert.True(t, strings.HasPrefix(chunks[1], "word"))

	lines := make([]string, 30)
	for i := range lines {
		lines[i] = strings.Repeat(fmt.Sprint(i%10), 100)
	}
	chunks = WrapReplyLines(strings.Join(lines, "\n"), "<@12345>")
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), discordMaxMessageLength)
	}
	assert.True(t, strings.HasPrefix(chunks[0], "<@12345> 000"))
	assert.Equal(t, strings.Join(lines, "\n"), strings.TrimPrefix(chunks[0], "<@12345> ")+"\n"+chunks[1])
}

func TestSchoolKey(t *testing.T) {
	t.Parallel()

	for input, expected := range map[string]string{
		"Lincoln High":       "lincoln_high",
		"St. Mary's - North": "st_marys_north",
		"A--B":               "a_b",
		"a_ _b":              "a_b",
		"!!!":                "",
		"Café High":          "café_high",
		"École Ste-Marie":    "école_ste_marie",
		"Schule\u00a0Nord":   "schule_nord",
		"中学 1":               "中学_1",
	} {
		assert.Equal(t, expected, SchoolKey(input), input)
	}
}

func TestFilterChoices(t *testing.T) {
	t.Parallel()

	var choices []*discordgo.ApplicationCommandOptionChoice
	for i := range 30 {
		choices = append(
			choices,
			&discordgo.ApplicationCommandOptionChoice{Name: fmt.Sprintf("Choice %02d", i), Value: i},
		)
	}

	assert.Len(t, filterChoices("", choices), discordMaxChoices)
	matched := filterChoices("CHOICE 2", choices)
	require.Len(t, matched, 10)
	assert.Equal(t, "Choice 20", matched[0].Name)
	assert.Empty(t, filterChoices("nope", choices))
	assert.NotNil(t, filterChoices("nope", nil))
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hé", truncate("héllo", 2))
	assert.Equal(t, "héllo", truncate("héllo", 5))
	assert.Equal(t, "", truncate("", 3))
}

func TestHashPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))

	other, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salted")

	ok, err := VerifyPassword(hash, "correct horse")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(hash, "battery staple")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyPassword("plaintext", "correct horse")
	assert.EqualError(t, err, "invalid hash format")

	_, err = VerifyPassword("$argon2id$v=19$m=65536,t=1,p=4$!!!$abc", "x")
	assert.EqualError(t, err, "invalid salt")
}

func TestInteractionOptions(t *testing.T) {
	t.Parallel()

	i := newTestInteraction(
		t,
		cmdSetup,
		subcommandGroup("doodads", subcommand("load", stringOption("doodad_name", templateDoodadName))),
	)
	path, options := interactionOptions(i)
	assert.Equal(t, []string{"doodads", "load"}, path)
	assert.Equal(t, templateDoodadName, optionString(options, "doodad_name"))
	assert.Nil(t, focusedOption(options))

	i = newTestInteraction(
		t,
		cmdAssetTag,
		&discordgo.ApplicationCommandInteractionDataOption{
			Name:  "printer_id",
			Type:  discordgo.ApplicationCommandOptionInteger,
			Value: float64(70000001),
		},
		&discordgo.ApplicationCommandInteractionDataOption{
			Name:  "flag",
			Type:  discordgo.ApplicationCommandOptionBoolean,
			Value: true,
		},
		focusedString("school_key", "lin"),
	)
	path, options = interactionOptions(i)
	assert.Empty(t, path)
	assert.Equal(t, "70000001", optionString(options, "printer_id"))
	assert.Equal(t, "true", optionString(options, "flag"))
	assert.Equal(t, "", optionString(options, "missing"))
	require.NotNil(t, focusedOption(options))
	assert.Equal(t, "school_key", focusedOption(options).Name)

	_, err := requireOption(options, "missing")
	var missing *MissingArgumentError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "missing", missing.Name)
}

func TestInteractionUser(t *testing.T) {
	t.Parallel()

	i := newTestInteraction(t, cmdHello)
	assert.Equal(t, testUserID, interactionUser(i).ID)

	i.Member = nil
	i.User = &discordgo.User{ID: "42"}
	assert.Equal(t, "42", interactionUser(i).ID)
}

func TestStructToSlogValue(t *testing.T) {
	t.Parallel()

	type nested struct {
		Enabled bool `json:"enabled"`
	}
	type example struct {
		Name     string  `json:"name,omitempty"`
		Token    string  `json:"token" log:"REDACTED"`
		Empty    string  `json:"empty"`
		Count    int     `json:"count"`
		Nested   *nested `json:"nested"`
		Missing  *nested `json:"missing"`
		Tags     []string
		internal string
	}

	v := structToSlogValue(&example{Name: "bot", Token: "secret", Count: 3, Nested: &nested{Enabled: true}})
	require.Equal(t, slog.KindGroup, v.Kind())

	attrs := map[string]slog.Value{}
	for _, attr := range v.Group() {
		attrs[attr.Key] = attr.Value
	}
	assert.Len(t, attrs, 4)
	assert.Equal(t, "bot", attrs["name"].String())
	assert.Equal(t, "REDACTED", attrs["token"].String())
	assert.Equal(t, int64(3), attrs["count"].Any())
	require.Equal(t, slog.KindGroup, attrs["nested"].Kind())
	assert.Equal(t, "enabled", attrs["nested"].Group()[0].Key)

	assert.Equal(t, slog.AnyValue(nil), structToSlogValue(nil))
	assert.Equal(t, slog.AnyValue(nil), structToSlogValue((*example)(nil)))
	assert.Equal(t, "x", structToSlogValue("x").String())
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	_, ok := ContextLogger(context.Background())
	assert.False(t, ok)

	logger := slog.Default().With("k", "v")
	ctx := WithLogger(context.Background(), logger)
	got, ok := ContextLogger(ctx)
	require.True(t, ok)
	assert.Same(t, logger, got)
	assert.Same(t, logger, loggerFrom(ctx, nil))

	fallback := slog.Default().With("fallback", true)
	assert.Same(t, fallback, loggerFrom(context.Background(), fallback))
}
