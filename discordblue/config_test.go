package discordblue

import (
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestValidateConfig_LLMPollInterval(t *testing.T) {
	t.Parallel()
	bot, _ := newTestBot(t)
	assert.NoError(t, bot.ValidateConfig())

	bot.config.LLM.PollInterval = 0
	assert.Error(t, bot.ValidateConfig())

	bot.config.LLM.PollInterval = 500 * time.Millisecond
	assert.Error(t, bot.ValidateConfig())

	bot.config.LLM.PollInterval = time.Second
	assert.NoError(t, bot.ValidateConfig())
}
