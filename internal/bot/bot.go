package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"flowtask/internal/model"
	"flowtask/internal/service"
)

const (
	cbTogglePrefix = "toggle:"
	cbDeletePrefix = "delete:"
)

const (
	menuLabelTasks  = "📋 Tasks"
	menuLabelStats  = "📊 Stats"
	menuLabelDigest = "⏰ Digest"
	menuLabelHelp   = "ℹ️ Help"
)

// API is the part of the Telegram client the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// SubscriberStore persists the chats that started the bot.
type SubscriberStore interface {
	UpsertFromTelegram(ctx context.Context, chatID int64, firstName, lastName, username string) (*model.Subscriber, error)
	FindByChatID(ctx context.Context, chatID int64) (*model.Subscriber, error)
	ListDigestEnabled(ctx context.Context) ([]model.Subscriber, error)
	SetDigest(ctx context.Context, chatID int64, enabled bool) error
}

// ListFactory builds a fresh task list controller for one chat.
type ListFactory func() *service.TaskList

// Bot translates chat messages into task list intents. Every chat gets its own
// controller, so filters, searches and edit sessions never leak between chats.
type Bot struct {
	api         API
	subscribers SubscriberStore
	digest      *service.DigestService
	newList     ListFactory
	now         func() time.Time
	log         zerolog.Logger

	mu    sync.Mutex
	lists map[int64]*service.TaskList
}

func New(token string, subscribers SubscriberStore, digest *service.DigestService, newList ListFactory, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info().Str("account", api.Self.UserName).Msg("bot authorized")
	return NewWithAPI(api, subscribers, digest, newList, log), nil
}

// NewWithAPI wires the bot to an existing client.
func NewWithAPI(api API, subscribers SubscriberStore, digest *service.DigestService, newList ListFactory, log zerolog.Logger) *Bot {
	return &Bot{
		api:         api,
		subscribers: subscribers,
		digest:      digest,
		newList:     newList,
		now:         time.Now,
		log:         log.With().Str("component", "bot").Logger(),
		lists:       make(map[int64]*service.TaskList),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error().Err(err).Msg("handle callback")
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error().Err(err).Msg("handle message")
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil {
		return nil
	}

	if msg.IsCommand() {
		b.log.Info().Int64("chat", msg.Chat.ID).Str("command", msg.Command()).Str("args", msg.CommandArguments()).Msg("command")
		return b.handleCommand(ctx, msg)
	}

	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}

	list, err := b.list(ctx, msg.Chat.ID)
	if err != nil {
		return err
	}
	if list.Edit().Active() {
		return b.finishEdit(ctx, msg.Chat.ID, list, msg.Text)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Use /add &lt;text&gt; to create a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.sendText(chatID, helpText)
	case "digest":
		return b.handleDigest(ctx, chatID, args)
	}

	list, err := b.list(ctx, chatID)
	if err != nil {
		return err
	}

	switch msg.Command() {
	case "tasks":
		return b.sendTaskList(chatID, list)
	case "add":
		return b.handleAdd(ctx, chatID, list, args)
	case "done":
		return b.handleAtPosition(ctx, chatID, list, args, "done", b.toggle)
	case "delete":
		return b.handleAtPosition(ctx, chatID, list, args, "delete", b.remove)
	case "edit":
		return b.handleEdit(chatID, list, args)
	case "cancel":
		list.CancelEdit()
		return b.sendText(chatID, "⏪ Editing cancelled.")
	case "move":
		return b.handleMove(ctx, chatID, list, args)
	case "filter":
		return b.handleFilter(chatID, list, args)
	case "search":
		list.SetSearch(args)
		return b.sendTaskList(chatID, list)
	case "clear":
		removed, err := list.DeleteCompleted(ctx)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.sendText(chatID, fmt.Sprintf("🗑 Removed %d completed task(s).", len(removed)))
	case "completeall":
		done, err := list.CompleteVisible(ctx)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.sendText(chatID, fmt.Sprintf("✅ Completed %d task(s).", len(done)))
	case "stats":
		return b.sendText(chatID, formatStats(list.Snapshot(b.now()).Stats))
	case "categories":
		return b.sendText(chatID, formatCategories(list.Categories()))
	case "category":
		return b.handleCategory(ctx, chatID, list, args)
	case "reload":
		if err := list.Load(ctx); err != nil {
			return b.replyError(chatID, err)
		}
		return b.sendTaskList(chatID, list)
	default:
		return b.sendText(chatID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureSubscriber(ctx, msg); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep your to-do list.</b>\n\n%s", escape(name), helpText)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, list *service.TaskList, args string) error {
	input, err := parseAddArgs(args, b.now().Location())
	if err != nil {
		return b.sendText(chatID, escape(err.Error()))
	}
	created, err := list.Create(ctx, input)
	if err != nil {
		return b.replyError(chatID, err)
	}
	b.log.Info().Int64("chat", chatID).Str("id", created.ID).Msg("task created")
	return b.sendText(chatID, fmt.Sprintf("➕ %s\n%s", service.NoticeCreated, escape(created.Text)))
}

type positionAction func(ctx context.Context, chatID int64, list *service.TaskList, id string) error

func (b *Bot) handleAtPosition(ctx context.Context, chatID int64, list *service.TaskList, args, command string, action positionAction) error {
	todo, err := todoAt(list, args)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Give the task number from /tasks: /%s 2", command))
	}
	return action(ctx, chatID, list, todo.ID)
}

func (b *Bot) toggle(ctx context.Context, chatID int64, list *service.TaskList, id string) error {
	updated, err := list.Toggle(ctx, id)
	if err != nil {
		return b.replyError(chatID, err)
	}
	notice := service.NoticeReopened
	if updated.Completed {
		notice = service.NoticeCompleted
	}
	return b.sendText(chatID, fmt.Sprintf("%s %s", notice, escape(updated.Text)))
}

func (b *Bot) remove(ctx context.Context, chatID int64, list *service.TaskList, id string) error {
	removed, err := list.Delete(ctx, id)
	if err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, fmt.Sprintf("🗑 %s: %s", service.NoticeDeleted, escape(removed.Text)))
}

func (b *Bot) handleEdit(chatID int64, list *service.TaskList, args string) error {
	todo, err := todoAt(list, args)
	if err != nil {
		return b.sendText(chatID, "Give the task number from /tasks: /edit 2")
	}
	session, err := list.StartEdit(todo.ID)
	if err != nil {
		return b.replyError(chatID, err)
	}
	return b.sendText(chatID, fmt.Sprintf("✏️ Editing <i>%s</i>\nSend the new text, or /cancel.", escape(session.Buffer)))
}

func (b *Bot) finishEdit(ctx context.Context, chatID int64, list *service.TaskList, text string) error {
	if err := list.SetEditBuffer(text); err != nil {
		return b.replyError(chatID, err)
	}
	saved, err := list.SaveEdit(ctx)
	if err != nil {
		return b.replyError(chatID, err)
	}
	if saved == nil {
		return b.sendText(chatID, "⏪ Empty text, edit discarded.")
	}
	return b.sendText(chatID, fmt.Sprintf("✏️ %s\n%s", service.NoticeUpdated, escape(saved.Text)))
}

func (b *Bot) handleMove(ctx context.Context, chatID int64, list *service.TaskList, args string) error {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return b.sendText(chatID, "Usage: /move 3 1")
	}
	from, errFrom := strconv.Atoi(parts[0])
	to, errTo := strconv.Atoi(parts[1])
	if errFrom != nil || errTo != nil {
		return b.sendText(chatID, "Positions must be numbers: /move 3 1")
	}
	if err := list.Reorder(ctx, from-1, to-1); err != nil {
		if notice := service.Notice(err); notice != "" {
			if err := b.sendText(chatID, escape(notice)); err != nil {
				return err
			}
		}
	}
	return b.sendTaskList(chatID, list)
}

func (b *Bot) handleFilter(chatID int64, list *service.TaskList, args string) error {
	filter, err := service.ParseFilter(args)
	if err != nil {
		return b.replyError(chatID, err)
	}
	list.SetFilter(filter)
	return b.sendTaskList(chatID, list)
}

func (b *Bot) handleCategory(ctx context.Context, chatID int64, list *service.TaskList, args string) error {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return b.sendText(chatID, "Usage: /category add &lt;name&gt; [#hex] [icon] or /category delete &lt;name&gt;")
	}

	switch strings.ToLower(parts[0]) {
	case "add":
		draft := model.CategoryDraft{Name: parts[1]}
		for _, extra := range parts[2:] {
			if strings.HasPrefix(extra, "#") {
				draft.Color = extra
			} else {
				draft.Icon = extra
			}
		}
		created, err := list.CreateCategory(ctx, draft)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.sendText(chatID, fmt.Sprintf("📂 Category <b>%s</b> added.", escape(created.Name)))
	case "delete":
		removed, err := list.DeleteCategory(ctx, parts[1])
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.sendText(chatID, fmt.Sprintf("🗑 Category <b>%s</b> deleted.", escape(removed.Name)))
	default:
		return b.sendText(chatID, "Usage: /category add &lt;name&gt; [#hex] [icon] or /category delete &lt;name&gt;")
	}
}

func (b *Bot) handleDigest(ctx context.Context, chatID int64, args string) error {
	switch strings.ToLower(args) {
	case "on", "off":
		enabled := strings.EqualFold(args, "on")
		if err := b.subscribers.SetDigest(ctx, chatID, enabled); err != nil {
			b.log.Warn().Err(err).Int64("chat", chatID).Msg("set digest")
			return b.sendText(chatID, "Send /start first, then try again.")
		}
		if enabled {
			return b.sendText(chatID, "⏰ Due digest enabled.")
		}
		return b.sendText(chatID, "🔕 Due digest disabled.")
	case "":
		text, _, err := b.digest.Summary(ctx, b.now())
		if err != nil {
			b.log.Warn().Err(err).Msg("build digest")
			return b.sendText(chatID, "Failed to build the digest")
		}
		return b.sendText(chatID, text)
	default:
		return b.sendText(chatID, "Usage: /digest [on|off]")
	}
}

// SendDueDigests sends the digest to every subscriber with it enabled. Nothing
// is sent when no task is due.
func (b *Bot) SendDueDigests(ctx context.Context) error {
	subs, err := b.subscribers.ListDigestEnabled(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	text, due, err := b.digest.Summary(ctx, b.now())
	if err != nil {
		return err
	}
	if !due {
		b.log.Debug().Msg("nothing due, digest skipped")
		return nil
	}
	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := b.sendText(sub.ChatID, text); err != nil {
			b.log.Warn().Err(err).Int64("chat", sub.ChatID).Msg("send digest")
		}
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("callback ack")
	}

	chatID := cb.Message.Chat.ID
	list, err := b.list(ctx, chatID)
	if err != nil {
		return err
	}

	b.log.Info().Int64("chat", chatID).Str("data", cb.Data).Msg("callback")
	switch {
	case strings.HasPrefix(cb.Data, cbTogglePrefix):
		if err := b.toggle(ctx, chatID, list, strings.TrimPrefix(cb.Data, cbTogglePrefix)); err != nil {
			return err
		}
	case strings.HasPrefix(cb.Data, cbDeletePrefix):
		if err := b.remove(ctx, chatID, list, strings.TrimPrefix(cb.Data, cbDeletePrefix)); err != nil {
			return err
		}
	default:
		return nil
	}
	return b.sendTaskList(chatID, list)
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(msg.Text) {
	case menuLabelTasks:
		list, err := b.list(ctx, msg.Chat.ID)
		if err != nil {
			return true, err
		}
		return true, b.sendTaskList(msg.Chat.ID, list)
	case menuLabelStats:
		list, err := b.list(ctx, msg.Chat.ID)
		if err != nil {
			return true, err
		}
		return true, b.sendText(msg.Chat.ID, formatStats(list.Snapshot(b.now()).Stats))
	case menuLabelDigest:
		return true, b.handleDigest(ctx, msg.Chat.ID, "")
	case menuLabelHelp:
		return true, b.sendText(msg.Chat.ID, helpText)
	default:
		return false, nil
	}
}

// list returns the chat's controller, creating and loading it on first use.
// A failed first load is reported to the chat and retried on the next message.
func (b *Bot) list(ctx context.Context, chatID int64) (*service.TaskList, error) {
	b.mu.Lock()
	list, ok := b.lists[chatID]
	if !ok {
		list = b.newList()
		b.lists[chatID] = list
	}
	b.mu.Unlock()

	if list.Loaded() {
		return list, nil
	}
	if err := list.Load(ctx); err != nil {
		if sendErr := b.replyError(chatID, err); sendErr != nil {
			return nil, sendErr
		}
		return nil, fmt.Errorf("load list for chat %d: %w", chatID, err)
	}
	return list, nil
}

func (b *Bot) ensureSubscriber(ctx context.Context, msg *tgbotapi.Message) (*model.Subscriber, error) {
	return b.subscribers.UpsertFromTelegram(ctx, msg.Chat.ID, msg.From.FirstName, msg.From.LastName, msg.From.UserName)
}

func (b *Bot) sendTaskList(chatID int64, list *service.TaskList) error {
	view := list.Snapshot(b.now())
	msg := tgbotapi.NewMessage(chatID, formatTaskList(view))
	msg.ParseMode = tgbotapi.ModeHTML
	if keyboard, ok := taskKeyboard(view); ok {
		msg.ReplyMarkup = keyboard
	}
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) replyError(chatID int64, err error) error {
	b.log.Warn().Err(err).Int64("chat", chatID).Msg("intent failed")
	return b.sendText(chatID, "⚠️ "+escape(service.Notice(err)))
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTasks),
			tgbotapi.NewKeyboardButton(menuLabelStats),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelDigest),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}
