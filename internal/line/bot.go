package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/mediarise/captionbot/internal/config"
	"github.com/mediarise/captionbot/internal/reply"
	"github.com/mediarise/captionbot/internal/service"
)

// Bot handles normalized LINE webhook events: image messages go through the
// caption pipeline, text messages cover the status and referral-code commands.
// Transport authenticity is the SDK's signature check in ParseRequest.
type Bot struct {
	cfg          config.Config
	client       *linebot.Client
	log          *slog.Logger
	captions     *service.CaptionService
	entitlements *service.EntitlementService
	referrals    *service.ReferralService
}

func NewBot(cfg config.Config, client *linebot.Client, log *slog.Logger, captions *service.CaptionService, entitlements *service.EntitlementService, referrals *service.ReferralService) *Bot {
	return &Bot{
		cfg:          cfg,
		client:       client,
		log:          log,
		captions:     captions,
		entitlements: entitlements,
		referrals:    referrals,
	}
}

// Callback is the LINE webhook endpoint. Events in one delivery are handled in
// order; deliveries for different users arrive as separate requests and run in
// parallel.
func (b *Bot) Callback(w http.ResponseWriter, r *http.Request) {
	events, err := b.client.ParseRequest(r)
	if err != nil {
		if errors.Is(err, linebot.ErrInvalidSignature) {
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		b.log.Error("parse webhook request", "err", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	for _, event := range events {
		b.handleEvent(r.Context(), event)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (b *Bot) handleEvent(ctx context.Context, event *linebot.Event) {
	if event.Type != linebot.EventTypeMessage || event.Source == nil || event.Source.UserID == "" {
		return
	}
	userID := event.Source.UserID

	switch message := event.Message.(type) {
	case *linebot.ImageMessage:
		b.handleImage(ctx, event.ReplyToken, userID, message.ID)
	case *linebot.TextMessage:
		b.handleText(ctx, event.ReplyToken, userID, message.Text)
	}
}

func (b *Bot) handleImage(ctx context.Context, replyToken, userID, messageID string) {
	image, mime, err := b.fetchImage(ctx, messageID)
	if err != nil {
		b.log.Error("fetch image content", "user_id", userID, "err", err)
		b.replyText(ctx, replyToken, b.cfg.Templates.GenerationFailed)
		return
	}

	result, err := b.captions.HandleImage(ctx, service.CaptionRequest{
		UserID:  userID,
		EventID: messageID,
		Image:   image,
		Mime:    mime,
	})
	if err != nil {
		if errors.Is(err, service.ErrQuotaExhausted) {
			b.replyText(ctx, replyToken, b.cfg.Templates.QuotaDenied)
			return
		}
		b.replyText(ctx, replyToken, b.cfg.Templates.GenerationFailed)
		return
	}

	identity := reply.Identity{UserID: userID, DisplayName: b.displayName(ctx, userID)}
	text := reply.Compose(result.Captions, result.Entitlement, identity, b.captions.Now(), b.cfg.Templates)
	b.replyText(ctx, replyToken, text)
}

func (b *Bot) handleText(ctx context.Context, replyToken, userID, text string) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	switch {
	case lower == "status":
		ent, err := b.entitlements.Status(ctx, userID)
		if err != nil {
			b.log.Error("status lookup", "user_id", userID, "err", err)
			b.replyText(ctx, replyToken, b.cfg.Templates.GenerationFailed)
			return
		}
		b.replyText(ctx, replyToken, reply.Status(ent, b.captions.Now(), b.cfg.Templates))
	case strings.HasPrefix(lower, "code "):
		code := strings.TrimSpace(trimmed[len("code "):])
		b.handleRedeem(ctx, replyToken, userID, code)
	}
	// Any other text is ignored; the bot only reacts to images and commands.
}

func (b *Bot) handleRedeem(ctx context.Context, replyToken, userID, code string) {
	bonus, err := b.referrals.Redeem(ctx, userID, code)
	switch {
	case err == nil:
		b.replyText(ctx, replyToken, fmt.Sprintf("Referral code accepted! +%d bonus captions.", bonus))
	case errors.Is(err, service.ErrReferralInvalid):
		b.replyText(ctx, replyToken, "That referral code is not valid.")
	case errors.Is(err, service.ErrReferralAlreadyRedeemed):
		b.replyText(ctx, replyToken, "You have already redeemed this referral code.")
	case errors.Is(err, service.ErrReferralExhausted):
		b.replyText(ctx, replyToken, "This referral code has no uses left.")
	default:
		b.log.Error("redeem referral code", "user_id", userID, "err", err)
		b.replyText(ctx, replyToken, "Could not redeem the code right now, please try again later.")
	}
}

func (b *Bot) fetchImage(ctx context.Context, messageID string) ([]byte, string, error) {
	content, err := b.client.GetMessageContent(messageID).WithContext(ctx).Do()
	if err != nil {
		return nil, "", fmt.Errorf("get message content: %w", err)
	}
	defer content.Content.Close()

	data, err := io.ReadAll(content.Content)
	if err != nil {
		return nil, "", fmt.Errorf("read message content: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty message content")
	}
	return data, content.ContentType, nil
}

func (b *Bot) displayName(ctx context.Context, userID string) string {
	profile, err := b.client.GetProfile(userID).WithContext(ctx).Do()
	if err != nil {
		b.log.Warn("get profile", "user_id", userID, "err", err)
		return ""
	}
	return profile.DisplayName
}

func (b *Bot) replyText(ctx context.Context, replyToken, text string) {
	if _, err := b.client.ReplyMessage(replyToken, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		b.log.Error("reply message", "err", err)
	}
}

// Push delivers a message outside a reply context, used for admin broadcasts.
func (b *Bot) Push(ctx context.Context, userID, text string) error {
	if _, err := b.client.PushMessage(userID, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}
