package discordblue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	fineTuneStatusSucceeded = "succeeded"
	fineTuneStatusFailed    = "failed"
	fineTuneStatusCancelled = "cancelled"

	generationTemperature = 0.2
)

// openAIClient is the subset of the OpenAI API used for fine-tuning and
// generation
type openAIClient interface {
	CreateFileBytes(ctx context.Context, request openai.FileBytesRequest) (openai.File, error)
	CreateFineTuningJob(
		ctx context.Context,
		request openai.FineTuningJobRequest,
	) (openai.FineTuningJob, error)
	RetrieveFineTuningJob(ctx context.Context, fineTuningJobID string) (openai.FineTuningJob, error)
	CreateChatCompletion(
		ctx context.Context,
		request openai.ChatCompletionRequest,
	) (openai.ChatCompletionResponse, error)
}

// LLM fine-tunes per-user chat models from collected conversations, and
// generates replies with them
type LLM struct {
	client openAIClient
	config *LLMConfig
	store  *StateStore
	logger *slog.Logger
}

func newLLM(config *LLMConfig, store *StateStore, httpClient *http.Client) (*LLM, error) {
	l := &LLM{
		config: config,
		store:  store,
		logger: newComponentLogger(config.LogLevel, "llm"),
	}
	if config.Token == "" {
		return l, nil
	}
	clientConfig := openai.DefaultConfig(config.Token)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}
	l.client = openai.NewClientWithConfig(clientConfig)
	return l, nil
}

// FineTuneDataset renders conversations as an OpenAI chat fine-tuning
// dataset: one JSON line per conversation, the context as the user turn
// and the target message as the assistant turn. The system turn names
// username, the same persona Generate prompts the fine-tuned model with.
func FineTuneDataset(username string, conversations []TrainingConversation) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, conv := range conversations {
		lines := make([]string, 0, len(conv.Context)+1)
		for _, m := range conv.Context {
			lines = append(lines, fmt.Sprintf("%s: %s", m.Username, m.Message))
		}
		if conv.Replied != nil {
			lines = append(lines, fmt.Sprintf("%s: %s", conv.Replied.Username, conv.Replied.Message))
		}
		if len(lines) == 0 {
			continue
		}
		record := struct {
			Messages []openai.ChatCompletionMessage `json:"messages"`
		}{
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(username)},
				{Role: openai.ChatMessageRoleUser, Content: strings.Join(lines, "\n")},
				{Role: openai.ChatMessageRoleAssistant, Content: conv.Target.Message},
			},
		}
		if err := enc.Encode(record); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func systemPrompt(username string) string {
	return fmt.Sprintf("You are %s, chatting in a discord server. Reply to the conversation as %s would.", username, username)
}

// Train uploads the dataset built from username's conversations and
// starts a fine-tuning job. When wait is set, it blocks until the job
// finishes and saves the fine-tuned model for username.
func (l *LLM) Train(ctx context.Context, username string, wait bool) (openai.FineTuningJob, error) {
	var job openai.FineTuningJob
	if l.client == nil {
		return job, fmt.Errorf("llm: %w", ErrNotConfigured)
	}
	logger := l.logger.With("username", username)

	conversations, err := LoadConversations(l.config.DataDir, username)
	if err != nil {
		return job, err
	}
	dataset, err := FineTuneDataset(username, conversations)
	if err != nil {
		return job, fmt.Errorf("error building dataset: %w", err)
	}
	if len(dataset) == 0 {
		return job, fmt.Errorf("no training data for %s", username)
	}
	logger.InfoContext(ctx, "generating dataset", "conversations", len(conversations))

	file, err := l.client.CreateFileBytes(
		ctx, openai.FileBytesRequest{
			Name:    username + "_fine_tune.jsonl",
			Bytes:   dataset,
			Purpose: openai.PurposeFineTune,
		},
	)
	if err != nil {
		return job, fmt.Errorf("error uploading dataset: %w", err)
	}

	job, err = l.client.CreateFineTuningJob(
		ctx, openai.FineTuningJobRequest{
			TrainingFile: file.ID,
			Model:        l.config.BaseModel,
			Suffix:       fineTuneSuffix(username),
		},
	)
	if err != nil {
		return job, fmt.Errorf("error creating fine-tuning job: %w", err)
	}
	logger.InfoContext(ctx, "created fine-tuning job", "job_id", job.ID, "status", job.Status)

	if !wait {
		return job, nil
	}
	return l.WaitForJob(ctx, username, job.ID)
}

// pollInterval returns the configured poll interval, or the default when
// it isn't positive
func (l *LLM) pollInterval() time.Duration {
	if l.config.PollInterval <= 0 {
		return DefaultLLMPollInterval
	}
	return l.config.PollInterval
}

// WaitForJob polls the fine-tuning job until it finishes. On success, the
// fine-tuned model is saved for username.
func (l *LLM) WaitForJob(ctx context.Context, username string, jobID string) (openai.FineTuningJob, error) {
	logger := l.logger.With("username", username, "job_id", jobID)
	limiter := rate.NewLimiter(rate.Every(l.pollInterval()), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return openai.FineTuningJob{}, err
		}
		job, err := l.client.RetrieveFineTuningJob(ctx, jobID)
		if err != nil {
			return job, fmt.Errorf("error retrieving fine-tuning job: %w", err)
		}
		logger.DebugContext(ctx, "fine-tuning job status", "status", job.Status)

		switch job.Status {
		case fineTuneStatusSucceeded:
			err = l.store.Update(
				func(s *State) error {
					s.LLMTraining.Models[username] = job.FineTunedModel
					return nil
				},
			)
			if err != nil {
				return job, fmt.Errorf("error saving model: %w", err)
			}
			logger.InfoContext(ctx, "model trained", "model", job.FineTunedModel)
			return job, nil
		case fineTuneStatusFailed, fineTuneStatusCancelled:
			return job, fmt.Errorf("fine-tuning job %s %s", jobID, job.Status)
		}
	}
}

// Generate replies to message as username, using username's fine-tuned
// model. Returns ErrModelNotFound if no model was trained for username.
func (l *LLM) Generate(ctx context.Context, username string, message string) (string, error) {
	model, ok := l.store.State().LLMTraining.Models[username]
	if !ok || model == "" {
		return "", ErrModelNotFound
	}
	if l.client == nil {
		return "", fmt.Errorf("llm: %w", ErrNotConfigured)
	}

	resp, err := l.client.CreateChatCompletion(
		ctx, openai.ChatCompletionRequest{
			Model:       model,
			MaxTokens:   l.config.MaxTokens,
			Temperature: generationTemperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(username)},
				{Role: openai.ChatMessageRoleUser, Content: message},
			},
		},
	)
	if err != nil {
		metricGenerations.WithLabelValues(resultError).Inc()
		l.logger.ErrorContext(ctx, "error generating response", tint.Err(err))
		return "", fmt.Errorf("error generating response: %w", err)
	}
	metricGenerations.WithLabelValues(resultSuccess).Inc()
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response generated")
	}
	generated := resp.Choices[0].Message.Content
	l.logger.InfoContext(ctx, fmt.Sprintf("Generated message: %s", generated))
	return generated, nil
}

// fineTuneSuffix returns the model name suffix for username, which
// OpenAI limits to 18 characters
func fineTuneSuffix(username string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(username) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return truncate(b.String(), 18)
}
