// Package openai is the caption generation gateway. It turns an inbound image
// into an ordered set of styled captions through two upstream calls (a vision
// description, then caption synthesis) exposed to callers as one atomic
// operation: one combined success or failure, no partial results, no retries.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mediarise/captionbot/internal/config"
	"github.com/mediarise/captionbot/internal/models"
)

var (
	// ErrRateLimited reports an upstream 429; the caller decides whether the
	// user should be asked to retry.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrMalformedResponse reports a reply missing the expected fields.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

type Client struct {
	apiKey       string
	baseURL      string
	visionModel  string
	captionModel string
	httpClient   *http.Client
	limiter      *rate.Limiter
	log          *slog.Logger
}

// Result is the combined outcome of one generation request. Topic is the
// intermediate scene description, kept for logging only.
type Result struct {
	Captions []models.Caption
	Topic    string
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rps := cfg.OpenAIRPS
	if rps <= 0 {
		rps = 2
	}

	return &Client{
		apiKey:       cfg.OpenAIAPIKey,
		baseURL:      strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		visionModel:  cfg.VisionModel,
		captionModel: cfg.CaptionModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log,
	}
}

// GenerateCaptions describes the image, then synthesizes one caption per
// configured style, in order. Any upstream failure aborts the whole operation.
func (c *Client) GenerateCaptions(ctx context.Context, image []byte, mime string, styles []config.CaptionStyle) (*Result, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if len(styles) == 0 {
		return nil, fmt.Errorf("no caption styles configured")
	}
	if mime == "" {
		mime = "image/jpeg"
	}

	topic, err := c.describeImage(ctx, image, mime)
	if err != nil {
		return nil, fmt.Errorf("describe image: %w", err)
	}

	captions, err := c.synthesizeCaptions(ctx, topic, styles)
	if err != nil {
		return nil, fmt.Errorf("synthesize captions: %w", err)
	}

	return &Result{Captions: captions, Topic: topic}, nil
}

func (c *Client) describeImage(ctx context.Context, image []byte, mime string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image))
	payload := map[string]any{
		"model": c.visionModel,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": "Describe the subject and content of this image in detail, covering the visual elements, as inspiration for a social media post."},
					{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
				},
			},
		},
		"temperature": 0.7,
	}
	return c.chatComplete(ctx, payload)
}

func (c *Client) synthesizeCaptions(ctx context.Context, topic string, styles []config.CaptionStyle) ([]models.Caption, error) {
	var sb strings.Builder
	sb.WriteString("Based on the topic below, write one social media caption per style.\n")
	sb.WriteString("For each style output exactly this block, in the listed order:\n")
	sb.WriteString("[style]\nTitle: <title>\nBody: <body>\n\nStyles:\n")
	for _, style := range styles {
		fmt.Fprintf(&sb, "- %s: %s (title at most %d characters, body at most %d characters)\n",
			style.Label, style.Guide, style.MaxTitle, style.MaxBody)
	}
	fmt.Fprintf(&sb, "\nTopic:\n%s\n", topic)

	payload := map[string]any{
		"model": c.captionModel,
		"messages": []map[string]any{
			{"role": "user", "content": sb.String()},
		},
		"temperature": 0.7,
	}

	raw, err := c.chatComplete(ctx, payload)
	if err != nil {
		return nil, err
	}
	return parseCaptions(raw, styles)
}

// chatComplete posts one chat-completions request and returns the first
// choice's content.
func (c *Client) chatComplete(ctx context.Context, payload map[string]any) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post openai: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if c.log != nil {
			c.log.Warn("openai rate limited", "body", truncateBody(rawBody))
		}
		return "", ErrRateLimited
	}
	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("openai request failed", "status", resp.StatusCode, "body", truncateBody(rawBody))
		}
		return "", fmt.Errorf("openai error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawBody, &completion); err != nil {
		return "", fmt.Errorf("decode completion: %w (body=%s)", errors.Join(ErrMalformedResponse, err), truncateBody(rawBody))
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("no choices in completion: %w", ErrMalformedResponse)
	}

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// parseCaptions extracts one [label] Title/Body block per configured style.
// A missing block or field means the upstream broke the requested format.
func parseCaptions(raw string, styles []config.CaptionStyle) ([]models.Caption, error) {
	captions := make([]models.Caption, 0, len(styles))
	for _, style := range styles {
		block, err := extractBlock(raw, style.Label)
		if err != nil {
			return nil, err
		}
		title, body := "", ""
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Title:"):
				title = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
			case strings.HasPrefix(line, "Body:"):
				body = strings.TrimSpace(strings.TrimPrefix(line, "Body:"))
			case body != "" && line != "":
				// Continuation of a multi-line body.
				body += "\n" + line
			}
		}
		if title == "" || body == "" {
			return nil, fmt.Errorf("style %q missing title or body: %w", style.Label, ErrMalformedResponse)
		}
		captions = append(captions, models.Caption{
			Label: style.Label,
			Title: truncateRunes(title, style.MaxTitle),
			Body:  truncateRunes(body, style.MaxBody),
		})
	}
	return captions, nil
}

func extractBlock(raw, label string) (string, error) {
	marker := "[" + label + "]"
	start := strings.Index(raw, marker)
	if start < 0 {
		return "", fmt.Errorf("style %q not found in response: %w", label, ErrMalformedResponse)
	}
	rest := raw[start+len(marker):]
	if next := strings.Index(rest, "\n["); next >= 0 {
		rest = rest[:next]
	}
	return rest, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
