package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core/llm"
)

const systemMessage = "Return only a single JSON object. Do not wrap it in Markdown."

var (
	_ llm.Completer       = (*Client)(nil)
	_ llm.VisionCompleter = (*Client)(nil)
)

// Complete sends one chat/completions request carrying prompt and returns the message content.
// There is no retry; every failure is an ErrOracleUnavailable.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, nil)
}

// CompleteWithImages attaches each image as an inline data URL part of the user message.
func (c *Client) CompleteWithImages(ctx context.Context, prompt string, images []llm.Image) (string, error) {
	parts := make([]map[string]any, 0, len(images)+1)
	parts = append(parts, map[string]any{"type": "text", "text": prompt})
	for _, img := range images {
		parts = append(parts, map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url":    llm.DataURL(img.Data, img.MimeType),
				"detail": "high",
			},
		})
	}
	return c.complete(ctx, prompt, parts)
}

func (c *Client) complete(ctx context.Context, prompt string, parts []map[string]any) (string, error) {
	logger := common.LoggerWithContext(ctx, c.logger)
	start := time.Now()

	logger.Info("llm.complete.start",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"prompt_chars", len([]rune(prompt)),
		"images", max(len(parts)-1, 0),
	)

	var user any = prompt
	if parts != nil {
		user = parts
	}
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": systemMessage},
			{"role": "user", "content": user},
		},
	}
	if c.cfg.JSONMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, status, err := common.SendJSON(ctx, c.http, endpoint, body, headers, logger)
	if err != nil {
		logger.Error("llm.complete.http_error",
			"status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.OracleError("llm", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		logger.Error("llm.complete.decode_error", "error", err, "raw_bytes", len(raw))
		return "", common.OracleError("llm", fmt.Errorf("decode openai response: %w", err))
	}
	if len(cc.Choices) == 0 {
		logger.Error("llm.complete.no_choices", "raw_bytes", len(raw))
		return "", common.OracleError("llm", errors.New("no choices in openai response"))
	}
	content := cc.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		logger.Error("llm.complete.empty_content", "finish_reason", cc.Choices[0].FinishReason)
		return "", common.OracleError("llm", errors.New("empty completion"))
	}

	logger.Info("llm.complete.ok",
		"content_chars", len([]rune(content)),
		"finish_reason", cc.Choices[0].FinishReason,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}
