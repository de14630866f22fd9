package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/samzong/searchbeam/internal/domain"
)

type Handler struct {
	bot *Bot
}

func NewHandler(bot *Bot) *Handler {
	return &Handler{bot: bot}
}

func (h *Handler) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	h.bot.logger.Info("received message",
		zap.Int64("user_id", msg.From.ID),
		zap.String("username", msg.From.UserName),
		zap.Bool("is_command", msg.IsCommand()),
	)

	if !h.bot.isAllowed(msg.From.ID) {
		h.bot.logger.Warn("user not in allow list", zap.Int64("user_id", msg.From.ID))
		h.bot.Send(msg.Chat.ID, "Доступ запрещен.")
		return
	}

	cmd := ParseCommand(msg.Text, h.bot.defaultPlatform)

	switch cmd.Kind {
	case CmdStart:
		h.handleStart(msg)
	case CmdHelp:
		h.handleHelp(msg)
	case CmdMore:
		h.handleMore(ctx, msg)
	case CmdSearch:
		h.handleSearch(ctx, msg, cmd)
	default:
		h.bot.Send(msg.Chat.ID, "Неизвестная команда. Используйте /help для справки.")
	}
}

func (h *Handler) handleStart(msg *tgbotapi.Message) {
	h.bot.Send(msg.Chat.ID, "Привет! Отправьте запрос, и я найду видео.\n\nИспользуйте /help для просмотра доступных команд.")
}

func (h *Handler) handleHelp(msg *tgbotapi.Message) {
	helpText := `<b>Доступные команды:</b>

/yt запрос - Поиск на YouTube
/search платформа запрос - Поиск на выбранной платформе
/more - Следующая страница последнего поиска
/help - Показать эту справку

<b>Как использовать:</b>
Просто отправьте текст, и я выполню поиск на платформе по умолчанию (%s).

<b>Платформы:</b> %s`

	platforms := strings.Join(h.bot.searchService.Platforms(), ", ")
	h.bot.Send(msg.Chat.ID, fmt.Sprintf(helpText,
		html.EscapeString(h.bot.defaultPlatform),
		html.EscapeString(platforms),
	))
}

func (h *Handler) handleSearch(ctx context.Context, msg *tgbotapi.Message, cmd Command) {
	if cmd.Query == "" {
		if cmd.Name == "/search" {
			h.bot.Send(msg.Chat.ID, "Использование: /search платформа запрос\nПример: /search youtube golang")
			return
		}
		h.bot.Send(msg.Chat.ID, mapErrorToMessage(domain.ErrEmptyQuery))
		return
	}

	h.runSearch(ctx, msg, session{Platform: cmd.Platform, Query: cmd.Query, Page: 1}, "")
}

func (h *Handler) handleMore(ctx context.Context, msg *tgbotapi.Message) {
	prev, ok := h.bot.sessions.Get(msg.Chat.ID)
	if !ok {
		h.bot.Send(msg.Chat.ID, "Сначала выполните поиск.")
		return
	}
	if prev.NextPageToken == "" {
		h.bot.Send(msg.Chat.ID, "Больше результатов нет.")
		return
	}

	next := session{Platform: prev.Platform, Query: prev.Query, Page: prev.Page + 1}
	h.runSearch(ctx, msg, next, prev.NextPageToken)
}

func (h *Handler) runSearch(ctx context.Context, msg *tgbotapi.Message, sess session, pageToken string) {
	key := rateLimitKey(msg.From.ID)
	if !h.bot.rateLimiter.Allow(key) {
		h.bot.logger.Warn("rate limit exceeded",
			zap.Int64("user_id", msg.From.ID),
			zap.Time("reset_at", h.bot.rateLimiter.ResetTime(key)),
		)
		h.bot.RecordRateLimitHit()
		h.bot.Send(msg.Chat.ID, "Слишком много запросов. Пожалуйста, подождите минуту.")
		return
	}

	req := domain.SearchRequest{
		Platform:   sess.Platform,
		Query:      sess.Query,
		PageToken:  pageToken,
		MaxResults: h.bot.pageSize,
	}
	if err := req.Validate(); err != nil {
		h.bot.Send(msg.Chat.ID, mapErrorToMessage(err))
		return
	}

	h.bot.SendTyping(msg.Chat.ID)

	resp := h.bot.searchService.Search(ctx, req)
	if resp.Failed() {
		h.bot.logger.Warn("search failed",
			zap.Int64("user_id", msg.From.ID),
			zap.String("platform", req.Platform),
			zap.String("error", resp.Error),
		)
		h.bot.Send(msg.Chat.ID, "Ошибка поиска: "+html.EscapeString(resp.Error))
		return
	}

	if len(resp.Items) == 0 {
		h.bot.sessions.Delete(msg.Chat.ID)
		h.bot.Send(msg.Chat.ID, "Ничего не найдено.")
		return
	}

	sess.NextPageToken = resp.NextPageToken
	h.bot.sessions.Set(msg.Chat.ID, sess)

	messages := SplitMessage(FormatSearchResponse(sess.Query, sess.Page, resp), maxMessageLen)
	for _, m := range messages {
		if err := h.bot.Send(msg.Chat.ID, m); err != nil {
			h.bot.logger.Error("failed to send message", zap.Error(err))
		}
	}
}

func mapErrorToMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		return "Пустой запрос. Введите текст для поиска."
	case errors.Is(err, domain.ErrQueryTooLong):
		return fmt.Sprintf("Запрос слишком длинный. Максимум %d символов.", domain.MaxQueryLength)
	case errors.Is(err, domain.ErrEmptyPlatform):
		return "Укажите платформу: /search youtube запрос"
	default:
		return "Произошла ошибка. Попробуйте позже."
	}
}
