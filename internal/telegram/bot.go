package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/samzong/searchbeam/internal/metrics"
	"github.com/samzong/searchbeam/internal/ratelimit"
	"github.com/samzong/searchbeam/internal/service"
)

const (
	defaultPageSize = 5
	maxMessageLen   = 4096 // лимит телеграма
)

type BotConfig struct {
	Token             string
	Debug             bool
	RequestsPerMinute int
	AllowedUsers      []int64
	DefaultPlatform   string
	PageSize          int
}

// sender - то, что нужно от BotAPI для ответов
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api             *tgbotapi.BotAPI
	out             sender
	searchService   service.SearchService
	logger          *zap.Logger
	metrics         *metrics.Metrics
	handler         *Handler
	rateLimiter     *ratelimit.Limiter
	allowed         map[int64]bool
	defaultPlatform string
	pageSize        int
	sessions        *sessionStore
	wg              sync.WaitGroup
}

func New(cfg BotConfig, searchSvc service.SearchService, logger *zap.Logger, m *metrics.Metrics) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	api.Debug = cfg.Debug

	bot := newBot(cfg, searchSvc, logger, m)
	bot.api = api
	bot.out = api

	logger.Info("telegram bot authorized",
		zap.String("username", api.Self.UserName),
	)

	return bot, nil
}

func newBot(cfg BotConfig, searchSvc service.SearchService, logger *zap.Logger, m *metrics.Metrics) *Bot {
	if cfg.DefaultPlatform == "" {
		cfg.DefaultPlatform = "youtube"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	allowed := make(map[int64]bool, len(cfg.AllowedUsers))
	for _, id := range cfg.AllowedUsers {
		allowed[id] = true
	}

	bot := &Bot{
		searchService:   searchSvc,
		logger:          logger,
		metrics:         m,
		rateLimiter:     ratelimit.New(ratelimit.Config{RequestsPerMinute: cfg.RequestsPerMinute}),
		allowed:         allowed,
		defaultPlatform: cfg.DefaultPlatform,
		pageSize:        cfg.PageSize,
		sessions:        newSessionStore(),
	}
	bot.handler = NewHandler(bot)
	return bot
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	go b.rateLimiter.Run(ctx, 5*time.Minute)

	b.logger.Info("bot started, waiting for updates")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot stopping, waiting for handlers to finish")
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.logger.Info("all handlers finished")
			return nil
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			b.wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer b.wg.Done()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			chatID := int64(0)
			if update.Message != nil && update.Message.Chat != nil {
				chatID = update.Message.Chat.ID
			}
			b.logger.Error("panic in update handler",
				zap.Any("panic", r),
				zap.Int64("chat_id", chatID),
			)
			if b.metrics != nil {
				b.metrics.RecordRequest("telegram", "panic", time.Since(startTime))
			}
		}
	}()

	b.handler.HandleMessage(ctx, update.Message)

	if b.metrics != nil {
		route := "telegram:command"
		if update.Message != nil && !update.Message.IsCommand() {
			route = "telegram:text"
		}
		b.metrics.RecordRequest(route, "processed", time.Since(startTime))
	}
}

func (b *Bot) Send(chatID int64, text string) error {
	if b.out == nil {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true
	_, err := b.out.Send(msg)
	return err
}

func (b *Bot) SendTyping(chatID int64) {
	if b.out == nil {
		return
	}
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	b.out.Send(action)
}

func (b *Bot) isAllowed(userID int64) bool {
	return len(b.allowed) == 0 || b.allowed[userID]
}

func (b *Bot) RecordRateLimitHit() {
	if b.metrics != nil {
		b.metrics.RecordRateLimitHit("telegram")
	}
}

func rateLimitKey(userID int64) string {
	return "tg:" + strconv.FormatInt(userID, 10)
}
