// Package gmail reads unread, labelled project mail through the Gmail REST API
// and marks what it read.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/vdavid/statusreport/backend/internal/logging"
	"github.com/vdavid/statusreport/backend/internal/models"
)

const user = "me"

type Config struct {
	TokenPath       string
	CredentialsPath string
	Query           string
	MaxResults      int
	Timeout         time.Duration
}

type serviceFactory func(ctx context.Context, ts oauth2.TokenSource) (*gmail.Service, error)

type Client struct {
	cfg        Config
	logger     *zap.Logger
	newService serviceFactory
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	c := &Client{cfg: cfg, logger: logger}
	c.newService = c.defaultService
	return c
}

func (c *Client) defaultService(ctx context.Context, ts oauth2.TokenSource) (*gmail.Service, error) {
	httpClient := &http.Client{
		Timeout:   c.cfg.Timeout,
		Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
	}
	return gmail.NewService(ctx, option.WithHTTPClient(httpClient))
}

// FetchProjectEmails returns up to MaxResults unread messages matching the query and
// marks the returned ones as read. Every failure degrades to fewer (or no) messages.
func (c *Client) FetchProjectEmails(ctx context.Context) []models.MailMessage {
	logger := logging.FromContext(ctx, c.logger)

	ts, err := loadTokenSource(ctx, c.cfg.CredentialsPath, c.cfg.TokenPath)
	if err != nil {
		logger.Error("Gmail credentials unavailable. Run `server gmail-auth` to authorize.", zap.Error(err))
		return []models.MailMessage{}
	}

	srv, err := c.newService(ctx, ts)
	if err != nil {
		logger.Error("Failed to create Gmail service", zap.Error(err))
		return []models.MailMessage{}
	}

	list, err := srv.Users.Messages.List(user).Q(c.cfg.Query).MaxResults(int64(c.cfg.MaxResults)).Context(ctx).Do()
	if err != nil {
		c.logAPIError(logger, "Gmail API call failed", err)
		return []models.MailMessage{}
	}
	logger.Info("Found emails matching query", zap.Int("count", len(list.Messages)), zap.String("query", c.cfg.Query))

	messages := make([]models.MailMessage, 0, len(list.Messages))
	ids := make([]string, 0, len(list.Messages))
	for _, info := range list.Messages {
		msg, err := c.fetchMessage(ctx, srv, info.Id)
		if err != nil {
			logger.Error("Error fetching email", zap.String("message_id", info.Id), zap.Error(err))
			continue
		}
		messages = append(messages, msg)
		ids = append(ids, info.Id)
	}

	if len(ids) > 0 {
		err := srv.Users.Messages.BatchModify(user, &gmail.BatchModifyMessagesRequest{
			Ids:            ids,
			RemoveLabelIds: []string{"UNREAD"},
		}).Context(ctx).Do()
		if err != nil {
			logger.Error("Error marking emails as read", zap.String("scope", Scope), zap.Error(err))
		} else {
			logger.Info("Marked emails as read", zap.Int("count", len(ids)))
		}
	}

	return messages
}

func (c *Client) fetchMessage(ctx context.Context, srv *gmail.Service, id string) (models.MailMessage, error) {
	msg, err := srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return models.MailMessage{}, fmt.Errorf("failed to get message: %w", err)
	}

	out := models.MailMessage{ID: id, Subject: "No Subject", Sender: "Unknown Sender"}
	if msg.Payload == nil {
		return out, nil
	}

	subjectSet, senderSet := false, false
	for _, h := range msg.Payload.Headers {
		switch {
		case !subjectSet && strings.EqualFold(h.Name, "subject"):
			out.Subject, subjectSet = h.Value, true
		case !senderSet && strings.EqualFold(h.Name, "from"):
			out.Sender, senderSet = h.Value, true
		}
	}

	body, err := extractBody(msg.Payload)
	if err != nil {
		return models.MailMessage{}, err
	}
	out.Body = body
	return out, nil
}

func (c *Client) logAPIError(logger *zap.Logger, msg string, err error) {
	logger.Error(msg, zap.Error(err))

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return
	}
	switch apiErr.Code {
	case http.StatusUnauthorized:
		logger.Error("Gmail authentication error (401). Token might be revoked or invalid.")
	case http.StatusForbidden:
		logger.Error("Gmail permission error (403). Check API console and scopes.", zap.String("scope", Scope))
	}
}
