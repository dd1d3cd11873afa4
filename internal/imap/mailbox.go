// Package imap reads unread project mail from an IMAP folder and marks it seen.
package imap

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/vdavid/statusreport/backend/internal/logging"
	"github.com/vdavid/statusreport/backend/internal/models"
)

type Config struct {
	Server     string
	Username   string
	Password   string
	Folder     string
	UseTLS     bool
	MaxResults int
	Timeout    time.Duration
}

// Mailbox is the IMAP counterpart of the Gmail client: the label is a folder and
// "unread" means the message lacks \Seen.
type Mailbox struct {
	cfg    Config
	logger *zap.Logger
}

func NewMailbox(cfg Config, logger *zap.Logger) *Mailbox {
	return &Mailbox{cfg: cfg, logger: logger}
}

// FetchProjectEmails returns up to MaxResults unseen messages, newest first, and
// marks the returned ones \Seen. Every failure degrades to fewer (or no) messages.
func (m *Mailbox) FetchProjectEmails(ctx context.Context) []models.MailMessage {
	logger := logging.FromContext(ctx, m.logger).With(zap.String("folder", m.cfg.Folder))

	c, err := m.open(ctx)
	if err != nil {
		logger.Error("Failed to open IMAP mailbox", zap.Error(err))
		return []models.MailMessage{}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.Terminate()
	})
	defer func() {
		stop()
		_ = c.Logout()
	}()

	uids, err := SearchUnseen(c, m.cfg.MaxResults)
	if err != nil {
		logger.Error("IMAP search failed", zap.Error(err))
		return []models.MailMessage{}
	}
	logger.Info("Found unseen emails", zap.Int("count", len(uids)))
	if len(uids) == 0 {
		return []models.MailMessage{}
	}

	fetched, err := FetchFullMessages(c, uids)
	if err != nil {
		logger.Error("IMAP fetch failed", zap.Error(err))
		return []models.MailMessage{}
	}

	messages := make([]models.MailMessage, 0, len(fetched))
	seen := make([]uint32, 0, len(fetched))
	for _, imapMsg := range fetched {
		msg, err := ParseMessage(imapMsg)
		if err != nil {
			logger.Error("Error processing email", zap.Uint32("uid", imapMsg.Uid), zap.Error(err))
			continue
		}
		messages = append(messages, msg)
		seen = append(seen, imapMsg.Uid)
	}

	if err := MarkSeen(c, seen); err != nil {
		logger.Error("Error marking emails as seen", zap.Error(err))
	} else if len(seen) > 0 {
		logger.Info("Marked emails as seen", zap.Int("count", len(seen)))
	}

	return messages
}

func (m *Mailbox) open(ctx context.Context) (*client.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := ConnectToIMAP(m.cfg.Server, m.cfg.UseTLS, m.cfg.Timeout)
	if err != nil {
		return nil, err
	}

	if err := Login(c, m.cfg.Username, m.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, err
	}

	if _, err := c.Select(m.cfg.Folder, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to select folder %s: %w", m.cfg.Folder, err)
	}
	return c, nil
}
