package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"telegram-store-bot/bot"
	"telegram-store-bot/notify"
	"telegram-store-bot/orders"
)

// sender returns the user behind an update, or nil for updates the bot
// does not handle.
func sender(u tgbotapi.Update) *tgbotapi.User {
	switch {
	case u.Message != nil:
		return u.Message.From
	case u.CallbackQuery != nil:
		return u.CallbackQuery.From
	}
	return nil
}

// decode turns an update into an event. A nil event with a nil error
// means the update is ignored.
func (b *Bot) decode(ctx context.Context, u tgbotapi.Update) (bot.Event, error) {
	if u.CallbackQuery != nil {
		from := u.CallbackQuery.From
		if from == nil {
			return nil, nil
		}
		a, err := DecodeAction(u.CallbackQuery.Data)
		if err != nil {
			return nil, err
		}
		if a.Kind == notify.ChooseOption {
			product, opt, ok, err := b.catalog.OptionByID(ctx, a.OptionID)
			if err != nil {
				return nil, err
			}
			// A removed option keeps empty names; placing it fails as an
			// invalid product.
			if ok {
				a.Product, a.Option = product, opt.Name
			}
		}
		return actionEvent(a, from)
	}
	if u.Message != nil && u.Message.From != nil {
		return b.decodeMessage(ctx, u.Message)
	}
	return nil, nil
}

func (b *Bot) decodeMessage(ctx context.Context, m *tgbotapi.Message) (bot.Event, error) {
	from := m.From
	if m.IsCommand() {
		return commandEvent(m.Command(), from), nil
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if text == "" {
		return nil, nil
	}

	if from.ID == b.adminID && m.ReplyToMessage != nil {
		p, ok, err := b.store.Prompt(ctx, m.Chat.ID, m.ReplyToMessage.MessageID)
		if err != nil {
			return nil, err
		}
		if ok {
			switch p.Kind {
			case notify.PromptDelivery:
				return bot.DeliverySubmitted{AdminID: from.ID, OrderID: p.TargetID, Content: text}, nil
			case notify.PromptTicketReply:
				return bot.TicketReply{AdminID: from.ID, TicketID: p.TargetID, Text: text}, nil
			}
		}
	}

	if kind, ok := b.keyboard[text]; ok && kind == notify.ReportProblem {
		return bot.ProblemReported{UserID: from.ID, Username: from.UserName}, nil
	}

	if _, ok, err := b.catalog.Product(ctx, text); err != nil {
		return nil, err
	} else if ok {
		return bot.ProductChosen{UserID: from.ID, ProductName: text}, nil
	}
	return bot.FreeTextMessage{UserID: from.ID, Text: strings.TrimSpace(text)}, nil
}

func commandEvent(cmd string, from *tgbotapi.User) bot.Event {
	switch cmd {
	case "orders":
		return bot.MyOrders{UserID: from.ID}
	case "pending":
		return bot.PendingOverview{AdminID: from.ID}
	case "tickets":
		return bot.OpenTickets{AdminID: from.ID}
	case "language":
		return bot.LanguageMenu{UserID: from.ID}
	case "support":
		return bot.ProblemReported{UserID: from.ID, Username: from.UserName}
	}
	return bot.Start{UserID: from.ID, Username: from.UserName}
}

func actionEvent(a notify.Action, from *tgbotapi.User) (bot.Event, error) {
	switch a.Kind {
	case notify.ChooseOption:
		price, err := decimal.NewFromString(a.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: price %q", ErrBadCallback, a.Price)
		}
		return bot.OptionChosen{
			UserID:      from.ID,
			Username:    from.UserName,
			ProductName: a.Product,
			Option:      a.Option,
			Price:       price,
		}, nil
	case notify.ClaimPaid:
		return bot.PaidClaim{UserID: from.ID, OrderID: a.OrderID}, nil
	case notify.CancelOrder:
		return bot.CancelRequested{UserID: from.ID, OrderID: a.OrderID}, nil
	case notify.ConfirmOrder:
		return bot.AdminDecision{AdminID: from.ID, OrderID: a.OrderID, Decision: orders.Confirm}, nil
	case notify.RejectOrder:
		return bot.AdminDecision{AdminID: from.ID, OrderID: a.OrderID, Decision: orders.Reject}, nil
	case notify.DeliverOrder:
		return bot.DeliveryRequested{AdminID: from.ID, OrderID: a.OrderID}, nil
	case notify.ReportProblem:
		return bot.ProblemReported{UserID: from.ID, Username: from.UserName}, nil
	case notify.ReplyTicket:
		return bot.ReplyRequested{AdminID: from.ID, TicketID: a.TicketID}, nil
	case notify.CloseTicket:
		return bot.TicketClose{AdminID: from.ID, TicketID: a.TicketID}, nil
	case notify.SetLanguage:
		return bot.LanguageChosen{UserID: from.ID, Language: a.Language}, nil
	}
	return nil, fmt.Errorf("%w: kind %q", ErrBadCallback, a.Kind)
}
