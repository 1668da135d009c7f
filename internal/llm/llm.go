package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/examdesk/gradebook/internal/llm/prompts"
	"github.com/examdesk/gradebook/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// CopyReader returns the transcribed text of a submission.
type CopyReader func(ctx context.Context, sub model.Submission) (string, error)

// Client grades copies with an OpenAI-compatible API.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
	read    CopyReader
}

// New creates a new LLM client. An unknown variant falls back to the
// standard prompt.
func New(baseURL, apiKey, modelName string, variant prompts.PromptVariant) (*Client, error) {
	if err := prompts.Load(); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if !prompts.IsValidVariant(string(variant)) {
		slog.Warn("unknown prompt variant, using standard", "variant", variant)
		variant = prompts.PromptStandard
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
		read:    ReadCopy,
	}, nil
}

// WithCopyReader replaces how submission text is loaded.
func (c *Client) WithCopyReader(read CopyReader) *Client {
	c.read = read
	return c
}

// Ping checks that the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM API ping: %w", err)
	}
	return nil
}

// Grade grades every submission and assembles a raw grading response keyed
// copie_1..copie_N in submission order. A copy that cannot be graded is sent
// as null so the rest of the batch survives; if every copy fails, Grade fails.
func (c *Client) Grade(ctx context.Context, exam model.Exam, subs []model.Submission) ([]byte, error) {
	resultat := make(map[string]json.RawMessage, len(subs))
	var failed int
	var lastErr error
	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := fmt.Sprintf("copie_%d", i+1)

		rc, err := c.GradeCopy(ctx, exam, sub)
		if err != nil {
			slog.Warn("LLM grading failed", "exam_id", exam.ID, "submission", sub.ID, "error", err)
			failed++
			lastErr = err
			resultat[key] = json.RawMessage("null")
			continue
		}
		data, err := json.Marshal(rc)
		if err != nil {
			return nil, err
		}
		resultat[key] = data
	}
	if len(subs) > 0 && failed == len(subs) {
		return nil, fmt.Errorf("all %d copies failed: %w", failed, lastErr)
	}
	return json.Marshal(model.RawGradingResponse{Resultat: resultat})
}

// GradeCopy grades one submission.
func (c *Client) GradeCopy(ctx context.Context, exam model.Exam, sub model.Submission) (*model.RawCopy, error) {
	text, err := c.read(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("read copy: %w", err)
	}

	systemPrompt, err := prompts.BuildGradePrompt(c.variant, exam, text)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM grading API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices for grading")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "submission", sub.ID, "raw", raw)

	var rc model.RawCopy
	if err := json.Unmarshal([]byte(raw), &rc); err != nil {
		return nil, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}
	rc.DBID = sub.ID
	rc.NomFichier = sub.DisplayName
	return &rc, nil
}

// ReadCopy loads a submission's text from its storage location, an http(s)
// URL or a local path.
func ReadCopy(ctx context.Context, sub model.Submission) (string, error) {
	u, err := url.Parse(sub.StorageLocation)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		data, err := os.ReadFile(sub.StorageLocation)
		return string(data), err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.StorageLocation, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: status %d", sub.StorageLocation, resp.StatusCode)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, io.LimitReader(resp.Body, 1<<20)); err != nil {
		return "", err
	}
	return sb.String(), nil
}
