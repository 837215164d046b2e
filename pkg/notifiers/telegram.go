package notifiers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/uks-watch/flats-monitor/internal/domain"
	"github.com/uks-watch/flats-monitor/pkg/httpclient"
)

// telegramNotifier delivers events to a chat via the Telegram Bot API.
// Bulletin events additionally upload the PDF artifact with sendDocument.
type telegramNotifier struct {
	id      string
	typ     string
	token   string
	chatID  string
	apiBase string
	client  *resty.Client
	log     Logger
}

func newTelegramNotifier(_ context.Context, cfg NotifierConfig, log Logger) (Notifier, error) {
	if cfg.Telegram == nil {
		return nil, fmt.Errorf("notifier %q missing telegram configuration", cfg.ID)
	}

	client := httpclient.NewRestyHTTPClient(time.Duration(cfg.Telegram.TimeoutSeconds) * time.Second)

	return &telegramNotifier{
		id:      cfg.ID,
		typ:     TypeTelegram,
		token:   cfg.Telegram.BotToken,
		chatID:  cfg.Telegram.ChatID,
		apiBase: cfg.Telegram.APIBase,
		client:  client,
		log:     ensureLogger(log),
	}, nil
}

func (t *telegramNotifier) ID() string   { return t.id }
func (t *telegramNotifier) Type() string { return t.typ }

// Notify sends the event text, plus the bulletin document when one was fetched.
func (t *telegramNotifier) Notify(ctx context.Context, evt Event) error {
	if err := t.sendMessage(ctx, messageText(evt)); err != nil {
		return err
	}

	if evt.Listing.Kind == domain.KindBulletin && evt.Listing.ArtifactPath != "" {
		if err := t.sendDocument(ctx, evt.Listing.ArtifactPath); err != nil {
			return err
		}
	}

	t.log.DebugObj("telegram notifier delivered event", "notifier_telegram_delivery", map[string]any{
		"notifier_id": t.id,
		"listing_id":  evt.Listing.ID,
	})
	return nil
}

// messageText renders the chat line for a listing kind.
func messageText(evt Event) string {
	l := evt.Listing
	switch l.Kind {
	case domain.KindBulletin:
		return fmt.Sprintf("New bulletin edition: %s\n%s", l.Filename, l.URL)
	case domain.KindNews:
		return fmt.Sprintf("News: %s\n%s", l.Title, l.URL)
	case domain.KindPage:
		return fmt.Sprintf("%s\n%s", l.Title, l.URL)
	default:
		return fmt.Sprintf("%s\n%s", l.Title, l.URL)
	}
}

func (t *telegramNotifier) sendMessage(ctx context.Context, text string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"chat_id": t.chatID,
			"text":    text,
		}).
		Post(t.methodURL("sendMessage"))
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return checkTelegramResponse("sendMessage", resp)
}

func (t *telegramNotifier) sendDocument(ctx context.Context, path string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetFile("document", path).
		SetFormData(map[string]string{"chat_id": t.chatID}).
		Post(t.methodURL("sendDocument"))
	if err != nil {
		return fmt.Errorf("telegram sendDocument: %w", err)
	}
	return checkTelegramResponse("sendDocument", resp)
}

func (t *telegramNotifier) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
}

// apiResult is the envelope every Bot API call returns.
type apiResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func checkTelegramResponse(method string, resp *resty.Response) error {
	if resp.IsError() {
		return fmt.Errorf("telegram %s status %d: %s", method, resp.StatusCode(), bodySnippet(resp.Body()))
	}

	var result apiResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return fmt.Errorf("telegram %s decode response: %w", method, err)
	}
	if !result.OK {
		return fmt.Errorf("telegram %s rejected: %s", method, result.Description)
	}
	return nil
}

func bodySnippet(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
