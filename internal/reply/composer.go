// Package reply assembles the outbound message text. Composition is a pure
// function of the generation output, the entitlement snapshot taken after the
// debit, and the static template fragments; numeric fields are computed fresh
// here rather than read from stale state.
package reply

import (
	"strconv"
	"strings"
	"time"

	"github.com/mediarise/captionbot/internal/config"
	"github.com/mediarise/captionbot/internal/models"
	"github.com/mediarise/captionbot/internal/quota"
)

// Identity is the platform identity echoed in the reply footer.
type Identity struct {
	UserID      string
	DisplayName string
}

// Compose renders the full success reply: welcome, captions, user commands,
// status block, announcement, notes, and the user id footer, joined by the
// configured separator.
func Compose(captions []models.Caption, ent *models.Entitlement, id Identity, now time.Time, t config.Templates) string {
	sections := []string{
		t.WelcomeText,
		renderCaptions(captions),
		strings.Join(t.UserCommands, "\n"),
		Status(ent, now, t),
		t.Announcement,
		t.Notes,
		renderUserID(id, t),
	}

	var sb strings.Builder
	for i, section := range sections {
		if i > 0 {
			sb.WriteString("\n\n")
			sb.WriteString(t.Separator)
			sb.WriteString("\n\n")
		}
		sb.WriteString(section)
	}
	return sb.String()
}

// Status renders the quota block alone, substituting every placeholder of
// user_status_format exactly once.
func Status(ent *models.Entitlement, now time.Time, t config.Templates) string {
	vipExpiry := t.VIPNoneLabel
	vipDaysLeft := t.VIPNoneLabel
	if days, ok := quota.VIPDaysLeft(ent, now); ok {
		vipExpiry = ent.VIPExpiry.Format("2006-01-02")
		vipDaysLeft = strconv.Itoa(days)
	}

	replacer := strings.NewReplacer(
		"{daily_limit}", strconv.Itoa(ent.DailyLimit),
		"{used_count}", strconv.Itoa(ent.UsedToday),
		"{remaining_count}", strconv.Itoa(quota.RemainingToday(ent)),
		"{invite_bonus}", strconv.Itoa(ent.ReferralBonus),
		"{service_bonus}", strconv.Itoa(ent.ServiceBonus),
		"{vip_expiry}", vipExpiry,
		"{vip_days_left}", vipDaysLeft,
	)
	return replacer.Replace(t.UserStatusFormat)
}

func renderCaptions(captions []models.Caption) string {
	blocks := make([]string, 0, len(captions))
	for _, c := range captions {
		blocks = append(blocks, "["+c.Label+"]\n"+c.Title+"\n"+c.Body)
	}
	return strings.Join(blocks, "\n\n")
}

func renderUserID(id Identity, t config.Templates) string {
	name := id.DisplayName
	if name == "" {
		name = id.UserID
	}
	replacer := strings.NewReplacer(
		"{user_id}", id.UserID,
		"{display_name}", name,
	)
	return replacer.Replace(t.UserIDDisplay)
}
