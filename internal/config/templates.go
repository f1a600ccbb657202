package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// CaptionStyle configures one entry of the generated caption set.
type CaptionStyle struct {
	Label    string `json:"label"`
	Guide    string `json:"guide"`
	MaxTitle int    `json:"max_title"`
	MaxBody  int    `json:"max_body"`
}

// Templates holds the static reply fragments loaded once at startup.
type Templates struct {
	WelcomeText      string         `json:"welcome_text"`
	Separator        string         `json:"separator"`
	UserCommands     []string       `json:"user_commands"`
	UserStatusFormat string         `json:"user_status_format"`
	Announcement     string         `json:"announcement"`
	Notes            string         `json:"notes"`
	UserIDDisplay    string         `json:"user_id_display"`
	VIPNoneLabel     string         `json:"vip_none_label"`
	QuotaDenied      string         `json:"quota_denied"`
	GenerationFailed string         `json:"generation_failed"`
	CaptionStyles    []CaptionStyle `json:"caption_styles"`
}

// statusPlaceholders must each appear exactly once in user_status_format.
var statusPlaceholders = []string{
	"{daily_limit}",
	"{used_count}",
	"{remaining_count}",
	"{invite_bonus}",
	"{service_bonus}",
	"{vip_expiry}",
	"{vip_days_left}",
}

// LoadTemplates reads and validates the template file.
func LoadTemplates(path string) (Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Templates{}, fmt.Errorf("read template config %s: %w", path, err)
	}
	return ParseTemplates(data)
}

// ParseTemplates decodes the template JSON and fails fast on missing keys or
// missing placeholders.
func ParseTemplates(data []byte) (Templates, error) {
	var t Templates
	if err := json.Unmarshal(data, &t); err != nil {
		return Templates{}, fmt.Errorf("decode template config: %w", err)
	}

	var missing []string
	if t.WelcomeText == "" {
		missing = append(missing, "welcome_text")
	}
	if t.Separator == "" {
		missing = append(missing, "separator")
	}
	if len(t.UserCommands) == 0 {
		missing = append(missing, "user_commands")
	}
	if t.UserStatusFormat == "" {
		missing = append(missing, "user_status_format")
	}
	if t.Announcement == "" {
		missing = append(missing, "announcement")
	}
	if t.Notes == "" {
		missing = append(missing, "notes")
	}
	if t.UserIDDisplay == "" {
		missing = append(missing, "user_id_display")
	}
	if len(missing) > 0 {
		return Templates{}, fmt.Errorf("template config missing keys: %v", missing)
	}

	for _, placeholder := range statusPlaceholders {
		switch strings.Count(t.UserStatusFormat, placeholder) {
		case 1:
		case 0:
			return Templates{}, fmt.Errorf("user_status_format missing placeholder %s", placeholder)
		default:
			return Templates{}, fmt.Errorf("user_status_format repeats placeholder %s", placeholder)
		}
	}
	if !strings.Contains(t.UserIDDisplay, "{user_id}") {
		return Templates{}, fmt.Errorf("user_id_display missing placeholder {user_id}")
	}

	if t.VIPNoneLabel == "" {
		t.VIPNoneLabel = "none"
	}
	if t.QuotaDenied == "" {
		t.QuotaDenied = "You have used up today's quota. Send \"status\" to check your balances."
	}
	if t.GenerationFailed == "" {
		t.GenerationFailed = "Caption generation is temporarily unavailable, please try again later."
	}
	if len(t.CaptionStyles) == 0 {
		t.CaptionStyles = DefaultCaptionStyles()
	}
	for i, style := range t.CaptionStyles {
		if style.Label == "" {
			return Templates{}, fmt.Errorf("caption_styles[%d] missing label", i)
		}
		if style.MaxTitle <= 0 {
			t.CaptionStyles[i].MaxTitle = 30
		}
		if style.MaxBody <= 0 {
			t.CaptionStyles[i].MaxBody = 200
		}
	}

	return t, nil
}

// DefaultCaptionStyles returns the stock three-style set.
func DefaultCaptionStyles() []CaptionStyle {
	return []CaptionStyle{
		{Label: "sentimental", Guide: "soft, emotional, first-person reflection", MaxTitle: 30, MaxBody: 200},
		{Label: "everyday-log", Guide: "casual daily-life diary tone", MaxTitle: 30, MaxBody: 200},
		{Label: "motivational", Guide: "uplifting and energetic, ends on encouragement", MaxTitle: 30, MaxBody: 200},
	}
}
