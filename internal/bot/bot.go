// Package bot connects the assistant to Telegram.
package bot

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/orgassist/config"
	"github.com/tazhate/orgassist/internal/assistant"
)

// maxMessage is Telegram's limit for a single text message.
const maxMessage = 4096

// Sender is the part of the Telegram API the bot talks through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	api      Sender
	tg       *tgbotapi.BotAPI // nil in tests
	cfg      *config.Config
	a        *assistant.Assistant
	server   *http.Server
	hookPath string
}

// New logs into Telegram and registers the boss channel.
func New(cfg *config.Config, a *assistant.Assistant) (*Bot, error) {
	if err := cfg.RequireTelegram(); err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Printf("Authorized as @%s", api.Self.UserName)

	b := NewWithSender(api, cfg, a)
	b.tg = api
	b.setCommands()
	return b, nil
}

// NewWithSender builds a bot around an existing API client.
func NewWithSender(api Sender, cfg *config.Config, a *assistant.Assistant) *Bot {
	secret := cfg.Telegram.WebhookSecret
	if secret == "" {
		secret = rand.Text()
	}
	b := &Bot{api: api, cfg: cfg, a: a, hookPath: "/bot/" + url.PathEscape(secret)}
	a.AddChannel(func(text string) error {
		return b.SendMessage(cfg.Boss.TelegramID, text)
	})
	return b
}

func (b *Bot) SetupWebhook() error {
	webhookURL := b.cfg.Telegram.WebhookURL + b.hookPath

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	if b.tg != nil {
		info, err := b.tg.GetWebhookInfo()
		if err != nil {
			return fmt.Errorf("get webhook info: %w", err)
		}
		if info.LastErrorDate != 0 {
			log.Printf("Webhook last error: %s", info.LastErrorMessage)
		}
	}
	log.Printf("Webhook set to: %s/bot/...", b.cfg.Telegram.WebhookURL)
	return nil
}

// Start receives updates until ctx is cancelled. Updates are handled one
// at a time, which keeps conversations with the dispatcher in order.
func (b *Bot) Start(ctx context.Context) error {
	if b.tg == nil {
		return fmt.Errorf("bot is not connected to Telegram")
	}

	var updates <-chan tgbotapi.Update
	if b.cfg.Telegram.WebhookURL != "" {
		if err := b.SetupWebhook(); err != nil {
			return err
		}
		ch := make(chan tgbotapi.Update, 100)
		b.server = &http.Server{
			Addr:              ":" + b.cfg.Telegram.ServerPort,
			Handler:           b.Handler(ch),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("Starting webhook server on :%s", b.cfg.Telegram.ServerPort)
			if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server error: %v", err)
			}
		}()
		updates = ch
	} else {
		if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.Printf("Failed to drop webhook: %v", err)
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates = b.tg.GetUpdatesChan(u)
		defer b.tg.StopReceivingUpdates()
		log.Printf("Polling for updates")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(update)
		}
	}
}

// Handler serves the health check and the webhook endpoint, which pushes
// decoded updates into updates. Updates are only accepted on the secret
// webhook path.
func (b *Bot) Handler(updates chan<- tgbotapi.Update) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc(b.hookPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		// HandleUpdate only decodes the request body, so it works before
		// the bot is connected.
		update, err := b.tg.HandleUpdate(r)
		if err != nil {
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		select {
		case updates <- *update:
		case <-r.Context().Done():
		}
	})
	return mux
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

// SendMessage sends plain text, split into several messages when it is too
// long for one.
func (b *Bot) SendMessage(chatID int64, text string) error {
	for _, part := range split(text, maxMessage) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.DisableWebPagePreview = true
		if _, err := b.api.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// split cuts text into chunks of at most limit runes, preferring line
// breaks.
func split(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
