// Package pipeline runs one report: fetch, assemble, analyze, notify, respond.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vdavid/statusreport/backend/internal/analysis"
	"github.com/vdavid/statusreport/backend/internal/logging"
	"github.com/vdavid/statusreport/backend/internal/models"
	"github.com/vdavid/statusreport/backend/internal/report"
)

type BoardFetcher interface {
	FetchAll(ctx context.Context, boardID string) (*models.BoardSnapshot, error)
}

type MailFetcher interface {
	FetchProjectEmails(ctx context.Context) []models.MailMessage
}

type ChatService interface {
	FetchMessages(ctx context.Context) []models.ChatMessage
	PostMessage(ctx context.Context, text, requestID string) models.NotificationOutcome
}

type Analyzer interface {
	Analyze(ctx context.Context, rawReport, requestID string) analysis.Result
}

// Broadcaster receives every successful response as JSON.
type Broadcaster interface {
	Broadcast(message []byte)
}

type Options struct {
	BoardID   string
	MailLabel string
	Now       func() time.Time
}

type Pipeline struct {
	board       BoardFetcher
	mail        MailFetcher
	chat        ChatService
	agent       Analyzer
	opts        Options
	broadcaster Broadcaster
	logger      *zap.Logger
}

func New(board BoardFetcher, mail MailFetcher, chat ChatService, agent Analyzer, opts Options, logger *zap.Logger) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		board:  board,
		mail:   mail,
		chat:   chat,
		agent:  agent,
		opts:   opts,
		logger: logger,
	}
}

// SetBroadcaster attaches a subscriber hub. Passing nil detaches it.
func (p *Pipeline) SetBroadcaster(b Broadcaster) {
	p.broadcaster = b
}

// Run executes the pipeline. The only error it returns for expected failures is the
// board fetch error (a *trello.APIError in production); anything else is unexpected.
func (p *Pipeline) Run(ctx context.Context, requestID string) (*models.ReportResponse, error) {
	ctx = logging.ContextWithRequestID(ctx, requestID)
	logger := p.logger.With(logging.RequestID(requestID))
	logger.Info("Status report generation started")

	snapshot, err := p.board.FetchAll(ctx, p.opts.BoardID)
	if err != nil {
		logger.Error("Board fetch failed, aborting report", zap.Error(err))
		return nil, err
	}

	var mail []models.MailMessage
	var chat []models.ChatMessage
	var g errgroup.Group
	g.Go(func() (err error) {
		defer recoverInto(&err, "mail fetch")
		mail = p.mail.FetchProjectEmails(ctx)
		return nil
	})
	g.Go(func() (err error) {
		defer recoverInto(&err, "chat fetch")
		chat = p.chat.FetchMessages(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := p.opts.Now().UTC()
	built := report.Build(snapshot, p.opts.MailLabel, mail, chat, now)
	raw := built.Raw()
	logger.Info("Raw report built",
		zap.Int("cards", built.Board.Count),
		zap.Int("overdue", built.OverdueCount),
		zap.Int("emails", built.Mail.Count),
		zap.Int("messages", built.Chat.Count),
	)

	result := p.agent.Analyze(ctx, raw, requestID)
	logger.Info("Analysis finished", zap.Stringer("status", result.Status))

	var status string
	if result.Notifiable() {
		message := fmt.Sprintf("📊 *Project Status Analysis - %s*\n>>> %s", now.Format("2006-01-02"), result.Text)
		status = p.chat.PostMessage(ctx, message, requestID).Status
	} else {
		logger.Warn("Skipping chat notification", zap.Stringer("analysis_status", result.Status))
		status = "Skipped: " + result.Text
	}

	resp := &models.ReportResponse{
		RawReport:               raw,
		AgentAnalysis:           result.Text,
		SlackNotificationStatus: status,
		RequestID:               requestID,
	}
	p.broadcast(logger, resp)

	logger.Info("Status report generation finished")
	return resp, nil
}

func (p *Pipeline) broadcast(logger *zap.Logger, resp *models.ReportResponse) {
	if p.broadcaster == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error("Failed to encode report for subscribers", zap.Error(err))
		return
	}
	p.broadcaster.Broadcast(data)
}

func recoverInto(err *error, stage string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic during %s: %v", stage, r)
	}
}
