package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/committee-extract/internal/common"
)

// VisionConfig configures the images:annotate OCR oracle.
type VisionConfig struct {
	Endpoint string // default https://vision.googleapis.com/v1/images:annotate
	APIKey   string // sent as a header, never in the URL
	Feature  string // default DOCUMENT_TEXT_DETECTION
	Timeout  time.Duration
}

// VisionClient is a PageRecognizer backed by a remote vision OCR API.
type VisionClient struct {
	cfg    VisionConfig
	http   *http.Client
	logger *slog.Logger
}

func NewVisionClient(cfg VisionConfig, logger *slog.Logger) *VisionClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://vision.googleapis.com/v1/images:annotate"
	}
	if cfg.Feature == "" {
		cfg.Feature = "DOCUMENT_TEXT_DETECTION"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VisionClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

type annotateResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// RecognizePage submits a single page image. Every failure is an ErrOracleUnavailable.
func (c *VisionClient) RecognizePage(ctx context.Context, img []byte, languageHints []string) (string, error) {
	request := map[string]any{
		"image":    map[string]any{"content": base64.StdEncoding.EncodeToString(img)},
		"features": []map[string]any{{"type": c.cfg.Feature}},
	}
	if len(languageHints) > 0 {
		request["imageContext"] = map[string]any{"languageHints": languageHints}
	}
	body := map[string]any{"requests": []any{request}}
	headers := map[string]string{"X-Goog-Api-Key": c.cfg.APIKey}

	raw, _, err := common.SendJSON(ctx, c.http, c.cfg.Endpoint, body, headers, c.logger)
	if err != nil {
		return "", common.OracleError("ocr", err)
	}

	var resp annotateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", common.OracleError("ocr", fmt.Errorf("decode response: %w", err))
	}
	if len(resp.Responses) == 0 {
		return "", common.OracleError("ocr", fmt.Errorf("no responses"))
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return "", common.OracleError("ocr", fmt.Errorf("api error %d: %s", r.Error.Code, r.Error.Message))
	}
	if r.FullTextAnnotation != nil && strings.TrimSpace(r.FullTextAnnotation.Text) != "" {
		return r.FullTextAnnotation.Text, nil
	}
	if len(r.TextAnnotations) > 0 {
		return r.TextAnnotations[0].Description, nil
	}
	return "", nil
}
