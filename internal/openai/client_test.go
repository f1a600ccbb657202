package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediarise/captionbot/internal/config"
)

func testStyles() []config.CaptionStyle {
	return []config.CaptionStyle{
		{Label: "sentimental", Guide: "soft", MaxTitle: 30, MaxBody: 200},
		{Label: "motivational", Guide: "upbeat", MaxTitle: 30, MaxBody: 200},
	}
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(config.Config{
		OpenAIAPIKey:   "test-key",
		OpenAIBaseURL:  baseURL,
		VisionModel:    "gpt-4o",
		CaptionModel:   "gpt-4o",
		RequestTimeout: 2 * time.Second,
		OpenAIRPS:      1000,
	}, nil)
}

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(body)
}

const captionText = `[sentimental]
Title: A quiet morning
Body: The light felt like a memory.

[motivational]
Title: Keep going
Body: Every step counts, even the small ones.`

func TestGenerateCaptions_TwoStepSuccess(t *testing.T) {
	var calls int
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		authHeader = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			_, _ = w.Write([]byte(completion("a cat on a windowsill at dawn")))
			return
		}
		_, _ = w.Write([]byte(completion(captionText)))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	result, err := c.GenerateCaptions(context.Background(), []byte("img"), "image/png", testStyles())

	require.NoError(t, err)
	assert.Equal(t, 2, calls, "description then synthesis")
	assert.Equal(t, "Bearer test-key", authHeader)
	assert.Equal(t, "a cat on a windowsill at dawn", result.Topic)
	require.Len(t, result.Captions, 2)
	assert.Equal(t, "sentimental", result.Captions[0].Label)
	assert.Equal(t, "A quiet morning", result.Captions[0].Title)
	assert.Equal(t, "motivational", result.Captions[1].Label)
	assert.Equal(t, "Every step counts, even the small ones.", result.Captions[1].Body)
}

func TestGenerateCaptions_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limit"}}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.GenerateCaptions(context.Background(), []byte("img"), "", testStyles())
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestGenerateCaptions_MissingChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.GenerateCaptions(context.Background(), []byte("img"), "", testStyles())
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGenerateCaptions_MalformedCaptionBlock(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(completion("topic")))
			return
		}
		// Second style block absent.
		_, _ = w.Write([]byte(completion("[sentimental]\nTitle: t\nBody: b")))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.GenerateCaptions(context.Background(), []byte("img"), "", testStyles())
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGenerateCaptions_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.GenerateCaptions(context.Background(), []byte("img"), "", testStyles())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=500")
}

func TestGenerateCaptions_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(completion("late")))
	}))
	defer srv.Close()

	c := NewClient(config.Config{
		OpenAIAPIKey:   "k",
		OpenAIBaseURL:  srv.URL,
		RequestTimeout: 50 * time.Millisecond,
		OpenAIRPS:      1000,
	}, nil)
	_, err := c.GenerateCaptions(context.Background(), []byte("img"), "", testStyles())
	require.Error(t, err)
}

func TestGenerateCaptions_InputValidation(t *testing.T) {
	c := testClient(t, "http://unused")

	_, err := c.GenerateCaptions(context.Background(), nil, "", testStyles())
	require.Error(t, err)

	_, err = c.GenerateCaptions(context.Background(), []byte("img"), "", nil)
	require.Error(t, err)
}

func TestParseCaptions_TruncatesToStyleLimits(t *testing.T) {
	styles := []config.CaptionStyle{{Label: "short", MaxTitle: 5, MaxBody: 4}}
	captions, err := parseCaptions("[short]\nTitle: abcdefghij\nBody: 你好世界再見", styles)

	require.NoError(t, err)
	assert.Equal(t, "abcde", captions[0].Title)
	assert.Equal(t, "你好世界", captions[0].Body, "limits count runes, not bytes")
}

func TestParseCaptions_MultilineBody(t *testing.T) {
	raw := "[short]\nTitle: t\nBody: first line\nsecond line"
	captions, err := parseCaptions(raw, []config.CaptionStyle{{Label: "short"}})

	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", captions[0].Body)
}

func TestParseCaptions_MissingTitle(t *testing.T) {
	_, err := parseCaptions("[short]\nBody: b", []config.CaptionStyle{{Label: "short"}})
	require.ErrorIs(t, err, ErrMalformedResponse)
}
