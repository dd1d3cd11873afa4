package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/vdavid/statusreport/backend/internal/analysis"
	"github.com/vdavid/statusreport/backend/internal/api"
	"github.com/vdavid/statusreport/backend/internal/config"
	"github.com/vdavid/statusreport/backend/internal/gmail"
	"github.com/vdavid/statusreport/backend/internal/imap"
	"github.com/vdavid/statusreport/backend/internal/middleware"
	"github.com/vdavid/statusreport/backend/internal/pipeline"
	"github.com/vdavid/statusreport/backend/internal/slack"
	"github.com/vdavid/statusreport/backend/internal/trello"
	ws "github.com/vdavid/statusreport/backend/internal/websocket"
)

const maxReportSubscribers = 50

// app holds the long-lived components shared by every request.
type app struct {
	pipeline *pipeline.Pipeline
	hub      *ws.Hub
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	generator, err := analysis.NewGeminiGenerator(ctx, cfg.GoogleAPIKey, cfg.GeminiBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	board := trello.NewClient(cfg.TrelloBaseURL, cfg.TrelloAPIKey, cfg.TrelloToken, cfg.TrelloTimeout, logger)
	chat := slack.NewClient(
		slack.NewAPI(cfg.SlackBotToken, cfg.SlackTimeout),
		slack.NewUserNameCache(),
		cfg.SlackChannelID,
		cfg.SlackHistoryLimit,
		logger,
	)
	agent := analysis.NewAgent(generator, cfg.GeminiModelName, cfg.AgentTemperature, cfg.AgentTimeout, logger)

	p := pipeline.New(board, newMailbox(cfg, logger), chat, agent, pipeline.Options{
		BoardID:   cfg.TrelloBoardID,
		MailLabel: cfg.MailLabel,
	}, logger)

	hub := ws.NewHub(maxReportSubscribers, logger)
	p.SetBroadcaster(hub)

	return &app{pipeline: p, hub: hub}, nil
}

func newMailbox(cfg *config.Config, logger *zap.Logger) pipeline.MailFetcher {
	if cfg.MailboxProvider == config.MailboxIMAP {
		return imap.NewMailbox(imap.Config{
			Server:     cfg.IMAPServer,
			Username:   cfg.IMAPUsername,
			Password:   cfg.IMAPPassword,
			Folder:     cfg.IMAPFolder,
			UseTLS:     cfg.IMAPUseTLS,
			MaxResults: cfg.MailMaxResults,
			Timeout:    cfg.IMAPTimeout,
		}, logger)
	}

	return gmail.NewClient(gmail.Config{
		TokenPath:       cfg.GmailTokenPath,
		CredentialsPath: cfg.GmailCredentialsPath,
		Query:           cfg.MailQuery(),
		MaxResults:      cfg.MailMaxResults,
		Timeout:         cfg.GmailTimeout,
	}, logger)
}

// NewServer creates the HTTP handler for the reporter API.
func NewServer(cfg *config.Config, logger *zap.Logger, runner api.ReportRunner, hub *ws.Hub) http.Handler {
	rootHandler := api.NewRootHandler(cfg.ProjectName, cfg.ProjectVersion, logger)
	reportHandler := api.NewReportHandler(runner, logger)
	wsHandler := api.NewWebSocketHandler(hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", rootHandler.Get)
	mux.HandleFunc("GET /api/v1/report", reportHandler.Get)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.Handle)

	return middleware.WithRequestID(middleware.Recover(logger, mux))
}
