package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/botquota/internal/ratelimit"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultTelegramTimeout = 5 * time.Second

// TelegramChecker asks the Bot API for the account's channel membership.
type TelegramChecker struct {
	baseURL   string
	token     string
	channelID string
	client    *http.Client
	limiter   ratelimit.Limiter
}

type TelegramOptions struct {
	BaseURL   string
	BotToken  string
	ChannelID string
	Timeout   time.Duration
	Limiter   ratelimit.Limiter
	Client    *http.Client
}

func NewTelegramChecker(opts TelegramOptions) (*TelegramChecker, error) {
	if strings.TrimSpace(opts.BotToken) == "" || strings.TrimSpace(opts.ChannelID) == "" {
		return nil, ErrNotConfigured
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTelegramTimeout
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramChecker{
		baseURL:   baseURL,
		token:     strings.TrimSpace(opts.BotToken),
		channelID: strings.TrimSpace(opts.ChannelID),
		client:    client,
		limiter:   opts.Limiter,
	}, nil
}

type chatMemberResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
	Result      struct {
		Status   string `json:"status"`
		IsMember bool   `json:"is_member"`
	} `json:"result"`
}

func (c *TelegramChecker) IsSubscribed(ctx context.Context, accountID int64) (bool, error) {
	if accountID <= 0 {
		return false, ErrInvalidAccountID
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}

	query := url.Values{}
	query.Set("chat_id", c.channelID)
	query.Set("user_id", strconv.FormatInt(accountID, 10))
	endpoint := fmt.Sprintf("%s/bot%s/getChatMember?%s", c.baseURL, c.token, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		// The request URL carries the bot token; keep it out of the error.
		return false, fmt.Errorf("%w: %s", ErrUpstream, redactToken(err.Error(), c.token))
	}
	defer resp.Body.Close()

	var body chatMemberResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("%w: decode status %d: %v", ErrUpstream, resp.StatusCode, err)
	}
	if !body.OK {
		if isUserNotFound(body.Description) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %d %s", ErrUpstream, body.ErrorCode, body.Description)
	}
	return memberCounts(body.Result.Status, body.Result.IsMember), nil
}

func memberCounts(status string, isMember bool) bool {
	switch status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return isMember
	default:
		return false
	}
}

func isUserNotFound(description string) bool {
	d := strings.ToLower(description)
	return strings.Contains(d, "user not found") || strings.Contains(d, "participant_id_invalid")
}

func redactToken(msg, token string) string {
	if token == "" {
		return msg
	}
	return strings.ReplaceAll(msg, token, "<redacted>")
}
