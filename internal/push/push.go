package push

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"pill-reminder/internal/database"
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported push platform")
	ErrDeliveryRejected    = errors.New("push provider rejected the message")
)

// Message is one push payload addressed to a single device token.
type Message struct {
	To    string
	Title string
	Body  string
	Data  map[string]string
}

// Receipt carries the provider's raw answer for logging.
type Receipt struct {
	Success          bool
	ProviderResponse string
}

type Transport interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// TransportFunc adapts a plain function to Transport.
type TransportFunc func(ctx context.Context, msg Message) (Receipt, error)

func (f TransportFunc) Send(ctx context.Context, msg Message) (Receipt, error) {
	return f(ctx, msg)
}

// ValidToken reports whether token looks deliverable on platform.
func ValidToken(platform database.Platform, token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	switch platform {
	case database.PlatformExpo:
		return (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
			strings.HasSuffix(token, "]")
	case database.PlatformTelegram:
		_, err := strconv.ParseInt(token, 10, 64)
		return err == nil
	case database.PlatformSNS:
		return strings.HasPrefix(token, "arn:")
	default:
		return false
	}
}
