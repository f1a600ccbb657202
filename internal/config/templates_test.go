package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTemplates = `{
	"welcome_text": "hi",
	"separator": "--",
	"user_commands": ["a"],
	"user_status_format": "{daily_limit}{used_count}{remaining_count}{invite_bonus}{service_bonus}{vip_expiry}{vip_days_left}",
	"announcement": "x",
	"notes": "y",
	"user_id_display": "{user_id} {display_name}"
}`

func TestParseTemplates_Valid(t *testing.T) {
	tpl, err := ParseTemplates([]byte(validTemplates))
	require.NoError(t, err)

	assert.Equal(t, "hi", tpl.WelcomeText)
	assert.Equal(t, "none", tpl.VIPNoneLabel, "sentinel defaults when omitted")
	assert.NotEmpty(t, tpl.QuotaDenied)
	assert.NotEmpty(t, tpl.GenerationFailed)
	require.Len(t, tpl.CaptionStyles, 3, "default style set")
	assert.Equal(t, "sentimental", tpl.CaptionStyles[0].Label)
	assert.Equal(t, 30, tpl.CaptionStyles[0].MaxTitle)
	assert.Equal(t, 200, tpl.CaptionStyles[0].MaxBody)
}

func TestParseTemplates_MissingKeys(t *testing.T) {
	_, err := ParseTemplates([]byte(`{"welcome_text": "hi"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing keys")
	assert.Contains(t, err.Error(), "separator")
	assert.Contains(t, err.Error(), "user_status_format")
}

func TestParseTemplates_MissingStatusPlaceholder(t *testing.T) {
	broken := `{
		"welcome_text": "hi",
		"separator": "--",
		"user_commands": ["a"],
		"user_status_format": "{daily_limit}{used_count}{remaining_count}{invite_bonus}{service_bonus}{vip_expiry}",
		"announcement": "x",
		"notes": "y",
		"user_id_display": "{user_id}"
	}`
	_, err := ParseTemplates([]byte(broken))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{vip_days_left}")
}

func TestParseTemplates_RepeatedStatusPlaceholder(t *testing.T) {
	broken := `{
		"welcome_text": "hi",
		"separator": "--",
		"user_commands": ["a"],
		"user_status_format": "{daily_limit}{daily_limit}{used_count}{remaining_count}{invite_bonus}{service_bonus}{vip_expiry}{vip_days_left}",
		"announcement": "x",
		"notes": "y",
		"user_id_display": "{user_id}"
	}`
	_, err := ParseTemplates([]byte(broken))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeats placeholder")
}

func TestParseTemplates_StyleDefaultsAndValidation(t *testing.T) {
	withStyles := `{
		"welcome_text": "hi",
		"separator": "--",
		"user_commands": ["a"],
		"user_status_format": "{daily_limit}{used_count}{remaining_count}{invite_bonus}{service_bonus}{vip_expiry}{vip_days_left}",
		"announcement": "x",
		"notes": "y",
		"user_id_display": "{user_id}",
		"caption_styles": [{"label": "short", "guide": "g"}]
	}`
	tpl, err := ParseTemplates([]byte(withStyles))
	require.NoError(t, err)
	require.Len(t, tpl.CaptionStyles, 1)
	assert.Equal(t, 30, tpl.CaptionStyles[0].MaxTitle, "zero limits take defaults")
	assert.Equal(t, 200, tpl.CaptionStyles[0].MaxBody)

	missingLabel := `{
		"welcome_text": "hi",
		"separator": "--",
		"user_commands": ["a"],
		"user_status_format": "{daily_limit}{used_count}{remaining_count}{invite_bonus}{service_bonus}{vip_expiry}{vip_days_left}",
		"announcement": "x",
		"notes": "y",
		"user_id_display": "{user_id}",
		"caption_styles": [{"guide": "g"}]
	}`
	_, err = ParseTemplates([]byte(missingLabel))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing label")
}
