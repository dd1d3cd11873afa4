// Package slack reads recent channel messages and posts the analysis back to the channel.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/vdavid/statusreport/backend/internal/logging"
	"github.com/vdavid/statusreport/backend/internal/models"
)

// maxReturnedMessages caps FetchMessages after filtering.
const maxReturnedMessages = 5

// AnalysisTitle marks the bot's own analysis posts so they are not fed back into the next report.
const AnalysisTitle = "Project Status Analysis"

// API is the subset of *slack.Client this package uses.
type API interface {
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// NewAPI returns a Web API client whose HTTP calls are bounded by timeout.
func NewAPI(token string, timeout time.Duration) *slack.Client {
	return slack.New(token, slack.OptionHTTPClient(&http.Client{Timeout: timeout}))
}

type Client struct {
	api          API
	cache        *UserNameCache
	channelID    string
	historyLimit int
	logger       *zap.Logger
	now          func() time.Time
}

func NewClient(api API, cache *UserNameCache, channelID string, historyLimit int, logger *zap.Logger) *Client {
	return &Client{
		api:          api,
		cache:        cache,
		channelID:    channelID,
		historyLimit: historyLimit,
		logger:       logger,
		now:          time.Now,
	}
}

// FetchMessages returns up to five recent human messages, newest first as the API
// returns them, with display names resolved. Any API failure yields an empty slice.
func (c *Client) FetchMessages(ctx context.Context) []models.ChatMessage {
	logger := logging.FromContext(ctx, c.logger).With(zap.String("channel", c.channelID))

	history, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: c.channelID,
		Limit:     c.historyLimit,
	})
	if err != nil {
		logger.Error("Slack API error fetching messages", zap.Error(err))
		switch errorCode(err) {
		case "not_in_channel":
			logger.Error("The bot associated with SLACK_BOT_TOKEN is not in the channel")
		case "invalid_auth":
			logger.Error("Invalid SLACK_BOT_TOKEN")
		}
		return []models.ChatMessage{}
	}
	logger.Info("Fetched raw Slack messages", zap.Int("count", len(history.Messages)))

	botUserID := ""
	if auth, err := c.api.AuthTestContext(ctx); err != nil {
		logger.Warn("Could not determine bot user ID via auth test", zap.Error(err))
	} else {
		botUserID = auth.UserID
	}

	filtered := FilterMessages(history.Messages, botUserID)

	out := make([]models.ChatMessage, 0, maxReturnedMessages)
	for _, msg := range filtered {
		if len(out) == maxReturnedMessages {
			break
		}
		out = append(out, models.ChatMessage{
			User:      c.ResolveUserName(ctx, msg.User),
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
		})
	}

	logger.Info("Returning processed Slack messages", zap.Int("count", len(out)))
	return out
}

// FilterMessages drops messages without a user or text, the bot's own messages
// (when botUserID is known), previous analysis posts and join/integration noise.
// The input order is preserved.
func FilterMessages(messages []slack.Message, botUserID string) []slack.Message {
	out := make([]slack.Message, 0, len(messages))
	for _, msg := range messages {
		switch {
		case msg.User == "" || msg.Text == "":
		case botUserID != "" && msg.User == botUserID:
		case msg.SubType == "bot_message" && strings.Contains(msg.Text, AnalysisTitle):
		case strings.Contains(msg.Text, "has joined the channel"), strings.Contains(msg.Text, "added an integration"):
		default:
			out = append(out, msg)
		}
	}
	return out
}

// ResolveUserName returns the user's real name, falling back to the ID when the
// name is empty or the lookup fails. Failed lookups are not cached.
func (c *Client) ResolveUserName(ctx context.Context, userID string) string {
	if name, ok := c.cache.Get(userID); ok {
		return name
	}

	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		logging.FromContext(ctx, c.logger).Error("Error fetching info for Slack user", zap.String("user_id", userID), zap.Error(err))
		return userID
	}

	name := userID
	if user.RealName != "" {
		name = user.RealName
	}
	c.cache.Set(userID, name)
	return name
}

// PostMessage posts text as a mrkdwn section with a dated context line. It never retries.
func (c *Client) PostMessage(ctx context.Context, text, requestID string) models.NotificationOutcome {
	logger := logging.ForRequest(ctx, c.logger, requestID).With(zap.String("channel", c.channelID))

	if c.channelID == "" || strings.TrimSpace(text) == "" {
		logger.Error("Slack post failed: missing channel or message text")
		return models.NotificationOutcome{Posted: false, Status: "Missing token, channel, or message."}
	}

	date := c.now().UTC().Format("2006-01-02")
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, "Report generated on "+date, false, false)),
	}

	logger.Info("Posting message to Slack channel")
	_, ts, err := c.api.PostMessageContext(ctx, c.channelID,
		slack.MsgOptionText(fmt.Sprintf("%s (%s)", AnalysisTitle, date), false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		if code := errorCode(err); code != "" {
			logger.Error("Slack API error posting message", zap.String("error", code))
			switch code {
			case "missing_scope":
				logger.Error("The SLACK_BOT_TOKEN is missing the 'chat:write' scope")
			case "invalid_auth":
				logger.Error("Invalid SLACK_BOT_TOKEN")
			}
			return models.NotificationOutcome{Posted: false, Status: "Slack API Error: " + code}
		}
		logger.Error("Unexpected error posting to Slack", zap.Error(err))
		return models.NotificationOutcome{Posted: false, Status: fmt.Sprintf("Unexpected Slack posting error: %v", err)}
	}

	logger.Info("Message posted to Slack", zap.String("ts", ts))
	return models.NotificationOutcome{Posted: true, Status: fmt.Sprintf("Message posted successfully to %s.", c.channelID)}
}

// errorCode returns the Web API error code ("not_in_channel", ...) or "" for
// failures that never reached the API.
func errorCode(err error) string {
	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) {
		return apiErr.Err
	}
	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) {
		return "ratelimited"
	}
	return ""
}
