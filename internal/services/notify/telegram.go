package notify

import (
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/rs/zerolog/log"
)

// Bot is the Telegram control panel: it pushes trade events to the
// operator chat and long-polls for control commands. It implements both
// Notifier and Controls.
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64

	mu            sync.RWMutex
	paused        bool
	autoTrading   bool
	emergencyStop bool

	positionsFn func() string
	pnlFn       func() string
}

// NewBot connects to Telegram. positionsFn and pnlFn render the /positions
// and /pnl replies; either may be nil.
func NewBot(token string, chatID int64, positionsFn, pnlFn func() string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}
	return &Bot{
		api:         api,
		chatID:      chatID,
		autoTrading: true,
		positionsFn: positionsFn,
		pnlFn:       pnlFn,
	}, nil
}

// Run long-polls for updates until the updates channel closes. It blocks
// on network I/O, so it runs on its own goroutine.
func (b *Bot) Run() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		return fmt.Errorf("error subscribing to telegram updates: %w", err)
	}

	for update := range updates {
		if update.Message == nil || update.Message.Chat == nil {
			continue
		}
		if update.Message.Chat.ID != b.chatID {
			continue
		}
		b.handleCommand(strings.TrimSpace(update.Message.Text))
	}
	return nil
}

func (b *Bot) handleCommand(text string) {
	switch {
	case text == "/pause":
		b.setPaused(true)
		b.send("⏸ Trading paused")
	case text == "/resume":
		b.setPaused(false)
		b.send("▶️ Trading resumed")
	case text == "/stop":
		b.setEmergency(true)
		b.send("🚨 Emergency stop engaged. No further orders will be placed.")
	case text == "/auto_on":
		b.setAuto(true)
		b.send("🤖 Auto trading on")
	case text == "/auto_off":
		b.setAuto(false)
		b.send("👤 Auto trading off")
	case text == "/status":
		b.send("📊 " + b.Status().String())
	case text == "/positions":
		if b.positionsFn != nil {
			b.send(b.positionsFn())
		}
	case text == "/pnl":
		if b.pnlFn != nil {
			b.send(b.pnlFn())
		}
	case strings.HasPrefix(text, "/"):
		b.send("Commands: /pause /resume /stop /auto_on /auto_off /status /positions /pnl")
	}
}

// Notify implements Notifier.
func (b *Bot) Notify(e Event) {
	prefix := map[EventType]string{
		EventOpen:   "📌",
		EventClose:  "✅",
		EventDrift:  "⚠️",
		EventError:  "❌",
		EventReport: "📊",
	}[e.Type]
	b.send(fmt.Sprintf("%s %s", prefix, e.Text))
}

// ShouldTrade implements Controls: trading requires not paused, not
// emergency-stopped, and auto trading enabled.
func (b *Bot) ShouldTrade() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.paused && !b.emergencyStop && b.autoTrading
}

// Status implements Controls.
func (b *Bot) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Status{Paused: b.paused, AutoTrading: b.autoTrading, EmergencyStop: b.emergencyStop}
}

func (b *Bot) setPaused(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = v
}

func (b *Bot) setAuto(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.autoTrading = v
}

func (b *Bot) setEmergency(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emergencyStop = v
}

func (b *Bot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("could not send telegram message")
	}
}
