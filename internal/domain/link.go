package domain

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrMalformedLink = errors.New("malformed payment link")

type LinkParams struct {
	SessionID string
	Amount    decimal.Decimal
	Currency  string
	Merchant  string
	Terminal  string
}

// EncodePaymentLink builds the URI advertised by the terminal:
// <base>/pay/<session_id>?amount=..&currency=..&merchant=..
func EncodePaymentLink(base string, params LinkParams) (string, error) {
	if params.SessionID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrMalformedLink)
	}

	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: bad base url %q", ErrMalformedLink, base)
	}

	u.Path = path.Join("/", u.Path, "pay", params.SessionID)
	q := url.Values{}
	q.Set("amount", params.Amount.String())
	q.Set("currency", params.Currency)
	if params.Merchant != "" {
		q.Set("merchant", params.Merchant)
	}
	if params.Terminal != "" {
		q.Set("terminal", params.Terminal)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ParseSessionID extracts only the correlation identifier from a payment
// link. Everything else in the link stays opaque.
func ParseSessionID(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedLink, err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("%w: missing scheme", ErrMalformedLink)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "pay" {
			if segments[i+1] == "" {
				return "", fmt.Errorf("%w: empty session id", ErrMalformedLink)
			}
			return segments[i+1], nil
		}
	}

	if id := u.Query().Get("sid"); id != "" {
		return id, nil
	}

	return "", fmt.Errorf("%w: no session id", ErrMalformedLink)
}

// ParseLink decodes every field EncodePaymentLink wrote. Resolvers that
// only need correlation should use ParseSessionID.
func ParseLink(link string) (LinkParams, error) {
	id, err := ParseSessionID(link)
	if err != nil {
		return LinkParams{}, err
	}

	u, _ := url.Parse(strings.TrimSpace(link))
	q := u.Query()

	params := LinkParams{
		SessionID: id,
		Currency:  q.Get("currency"),
		Merchant:  q.Get("merchant"),
		Terminal:  q.Get("terminal"),
	}
	if raw := q.Get("amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return LinkParams{}, fmt.Errorf("%w: bad amount %q", ErrMalformedLink, raw)
		}
		params.Amount = amount
	}

	return params, nil
}
