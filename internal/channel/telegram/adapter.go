// Package telegram is the token-based channel adapter built on go-telegram/bot.
package telegram

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/channel"
	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxMessageLen is Telegram's limit for one text message.
const MaxMessageLen = 4096

type Option func(*options)

type options struct {
	serverURL string
}

// WithServerURL points the adapter at a non-default Bot API endpoint.
func WithServerURL(u string) Option {
	return func(o *options) { o.serverURL = u }
}

type Adapter struct {
	tenantID uuid.UUID
	logger   *zap.Logger
	opts     options

	mu     sync.Mutex
	bot    *bot.Bot
	cancel context.CancelFunc
	done   chan struct{}
}

var (
	_ channel.Adapter   = (*Adapter)(nil)
	_ channel.Validator = (*Adapter)(nil)
)

func New(tenantID uuid.UUID, logger *zap.Logger, opts ...Option) *Adapter {
	a := &Adapter{tenantID: tenantID, logger: logger}
	for _, o := range opts {
		o(&a.opts)
	}
	return a
}

// NewFactory returns a channel.Factory producing Telegram adapters.
func NewFactory(logger *zap.Logger, opts ...Option) channel.Factory {
	return func(tenantID uuid.UUID) (channel.Adapter, error) {
		return New(tenantID, logger.With(zap.String("channel", "telegram"), zap.String("tenant_id", tenantID.String())), opts...), nil
	}
}

func (a *Adapter) Kind() domain.ChannelKind {
	return domain.ChannelTelegram
}

func (a *Adapter) botOptions(extra ...bot.Option) []bot.Option {
	opts := []bot.Option{bot.WithSkipGetMe()}
	if a.opts.serverURL != "" {
		opts = append(opts, bot.WithServerURL(a.opts.serverURL))
	}
	return append(opts, extra...)
}

func rejectsToken(err error) bool {
	return errors.Is(err, bot.ErrorUnauthorized) || errors.Is(err, bot.ErrorNotFound)
}

// classify marks credential rejections as auth failures.
func classify(err error) error {
	if rejectsToken(err) {
		return errors.Mark(errors.Wrap(err, "telegram rejected token"), domain.ErrAuthFailed)
	}
	return errors.Wrap(err, "telegram request failed")
}

// Validate checks a token with getMe and returns the bot's @username.
func (a *Adapter) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errors.Mark(errors.New("token is empty"), domain.ErrAuthFailed)
	}
	b, err := bot.New(token, a.botOptions()...)
	if err != nil {
		return "", classify(err)
	}
	me, err := b.GetMe(ctx)
	if err != nil {
		return "", classify(err)
	}
	return "@" + me.Username, nil
}

func (a *Adapter) Start(ctx context.Context, cred channel.Credential, sink chan<- channel.Event) error {
	if cred.Secret == "" {
		return errors.Mark(errors.New("no bot token configured"), domain.ErrAuthFailed)
	}

	runCtx, cancel := context.WithCancel(ctx)
	var revoked sync.Once
	b, err := bot.New(cred.Secret, a.botOptions(
		bot.WithDefaultHandler(func(hctx context.Context, b *bot.Bot, update *models.Update) {
			a.handleUpdate(hctx, b, update, sink)
		}),
		bot.WithErrorsHandler(func(err error) {
			if !rejectsToken(err) {
				a.logger.Warn("telegram polling error", zap.Error(err))
				return
			}
			// A token revoked after startup fails every poll; report it once.
			revoked.Do(func() {
				a.logger.Warn("telegram token rejected while polling", zap.Error(err))
				channel.Emit(runCtx, sink, channel.Failure{Err: classify(err)})
			})
		}),
	)...)
	if err != nil {
		cancel()
		return classify(err)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		cancel()
		return classify(err)
	}

	done := make(chan struct{})
	a.mu.Lock()
	a.bot, a.cancel, a.done = b, cancel, done
	a.mu.Unlock()

	// Connected goes out before polling starts so that any polling failure
	// follows it on the sink.
	channel.Emit(ctx, sink, channel.Connected{
		Identity:    "@" + me.Username,
		DisplayName: me.FirstName,
		Credential:  cred.Secret,
	})

	go func() {
		defer close(done)
		b.Start(runCtx)
	}()
	return nil
}

func (a *Adapter) handleUpdate(ctx context.Context, b *bot.Bot, update *models.Update, sink chan<- channel.Event) {
	switch {
	case update.Message != nil && update.Message.Text != "":
		m := update.Message
		in := channel.InboundMessage{
			ChatID:     strconv.FormatInt(m.Chat.ID, 10),
			Text:       m.Text,
			ReceivedAt: time.Now(),
		}
		if m.From != nil {
			in.SenderID = strconv.FormatInt(m.From.ID, 10)
			in.SenderName = m.From.FirstName
		}
		channel.Emit(ctx, sink, channel.Inbound{Message: in})

	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID}); err != nil {
			a.logger.Debug("answer callback failed", zap.Error(err))
		}
		if cq.Message.Message == nil {
			return
		}
		channel.Emit(ctx, sink, channel.Inbound{Message: channel.InboundMessage{
			ChatID:     strconv.FormatInt(cq.Message.Message.Chat.ID, 10),
			SenderID:   strconv.FormatInt(cq.From.ID, 10),
			SenderName: cq.From.FirstName,
			Text:       cq.Data,
			IsCallback: true,
			CallbackID: cq.ID,
			ReceivedAt: time.Now(),
		}})
	}
}

func (a *Adapter) Send(ctx context.Context, msg channel.OutboundMessage) error {
	a.mu.Lock()
	b := a.bot
	a.mu.Unlock()
	if b == nil {
		return errors.New("telegram adapter not started")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid chat id %q", msg.ChatID)
	}

	parts := SplitMessage(msg.Text, MaxMessageLen)
	for i, part := range parts {
		params := &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      part,
			ParseMode: models.ParseModeMarkdownV1,
		}
		if i == len(parts)-1 && len(msg.Buttons) > 0 {
			params.ReplyMarkup = Keyboard(msg.Buttons)
		}
		if _, err := b.SendMessage(ctx, params); err != nil {
			a.logger.Debug("markdown send failed, retrying as plain text", zap.Error(err))
			params.ParseMode = ""
			if _, err := b.SendMessage(ctx, params); err != nil {
				return classify(err)
			}
		}
	}
	return nil
}

// Stop ends long polling. Telegram has no remote session to log out of.
func (a *Adapter) Stop(ctx context.Context, logout bool) error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.bot, a.cancel, a.done = nil, nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Keyboard converts button rows into an inline keyboard.
func Keyboard(rows [][]channel.Button) *models.InlineKeyboardMarkup {
	kb := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		r := make([]models.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			r = append(r, models.InlineKeyboardButton{Text: btn.Text, CallbackData: btn.Token})
		}
		kb = append(kb, r)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: kb}
}

// SplitMessage breaks text into chunks of at most limit runes, preferring
// line boundaries.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
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
