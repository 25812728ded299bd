package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"telegram-store-bot/notify"
)

// Telegram rejects callback data longer than this many bytes.
const maxCallbackData = 64

var (
	ErrCallbackTooLong = errors.New("telegram: callback data exceeds 64 bytes")
	ErrBadCallback     = errors.New("telegram: malformed callback data")
)

const fieldSep = "|"

// EncodeAction packs a into callback data: the action kind, a colon,
// then the kind's fields separated by "|". Options travel as their
// catalog id and price, never their names, so the data stays short for
// any catalog language.
func EncodeAction(a notify.Action) (string, error) {
	var fields []string
	switch a.Kind {
	case notify.ChooseOption:
		if a.OptionID <= 0 || a.Price == "" {
			return "", fmt.Errorf("telegram: option action needs an id and a price, got %d/%q", a.OptionID, a.Price)
		}
		fields = []string{strconv.FormatInt(a.OptionID, 10), a.Price}
	case notify.ClaimPaid, notify.CancelOrder, notify.ConfirmOrder, notify.RejectOrder, notify.DeliverOrder:
		fields = []string{strconv.FormatInt(a.OrderID, 10)}
	case notify.ReplyTicket, notify.CloseTicket:
		fields = []string{strconv.FormatInt(a.TicketID, 10)}
	case notify.SetLanguage:
		fields = []string{a.Language}
	case notify.ReportProblem:
	default:
		return "", fmt.Errorf("telegram: unknown action kind %q", a.Kind)
	}
	for _, f := range fields {
		if strings.Contains(f, fieldSep) {
			return "", fmt.Errorf("telegram: field %q of %s action contains %q", f, a.Kind, fieldSep)
		}
	}
	data := string(a.Kind) + ":" + strings.Join(fields, fieldSep)
	if len(data) > maxCallbackData {
		return "", fmt.Errorf("%w: %s action is %d bytes", ErrCallbackTooLong, a.Kind, len(data))
	}
	return data, nil
}

// DecodeAction is the inverse of EncodeAction. Option names are not in
// the data; the caller resolves OptionID through the catalog.
func DecodeAction(data string) (notify.Action, error) {
	kind, rest, ok := strings.Cut(data, ":")
	if !ok {
		return notify.Action{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
	}
	a := notify.Action{Kind: notify.ActionKind(kind)}
	switch a.Kind {
	case notify.ChooseOption:
		idField, price, ok := strings.Cut(rest, fieldSep)
		if !ok || price == "" || strings.Contains(price, fieldSep) {
			return notify.Action{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		id, err := parseID(idField)
		if err != nil {
			return notify.Action{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		a.OptionID, a.Price = id, price
	case notify.ClaimPaid, notify.CancelOrder, notify.ConfirmOrder, notify.RejectOrder, notify.DeliverOrder:
		id, err := parseID(rest)
		if err != nil {
			return notify.Action{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		a.OrderID = id
	case notify.ReplyTicket, notify.CloseTicket:
		id, err := parseID(rest)
		if err != nil {
			return notify.Action{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		a.TicketID = id
	case notify.SetLanguage:
		if rest == "" {
			return notify.Action{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		a.Language = rest
	case notify.ReportProblem:
	default:
		return notify.Action{}, fmt.Errorf("%w: unknown kind in %q", ErrBadCallback, data)
	}
	return a, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("non-positive id %d", id)
	}
	return id, nil
}
