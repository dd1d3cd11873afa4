package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/vdavid/statusreport/backend/internal/analysis"
	"github.com/vdavid/statusreport/backend/internal/models"
	"github.com/vdavid/statusreport/backend/internal/trello"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeMail struct {
	messages []models.MailMessage
	calls    int
	panics   bool
}

func (f *fakeMail) FetchProjectEmails(context.Context) []models.MailMessage {
	f.calls++
	if f.panics {
		panic("mailbox exploded")
	}
	return f.messages
}

type fakeChat struct {
	mu        sync.Mutex
	messages  []models.ChatMessage
	outcome   models.NotificationOutcome
	posted    []string
	fetchCall int
}

func (f *fakeChat) FetchMessages(context.Context) []models.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCall++
	return f.messages
}

func (f *fakeChat) PostMessage(_ context.Context, text, _ string) models.NotificationOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, text)
	return f.outcome
}

type fakeAnalyzer struct {
	result analysis.Result
	raw    string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, rawReport, _ string) analysis.Result {
	f.raw = rawReport
	return f.result
}

type fakeBoard struct {
	snapshot *models.BoardSnapshot
	err      error
}

func (f *fakeBoard) FetchAll(context.Context, string) (*models.BoardSnapshot, error) {
	return f.snapshot, f.err
}

type recordingBroadcaster struct {
	messages [][]byte
}

func (r *recordingBroadcaster) Broadcast(message []byte) {
	r.messages = append(r.messages, message)
}

func newBoardServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /boards/{id}/lists", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `[{"id":"L1","name":"Backlog"}]`)
	})
	mux.HandleFunc("GET /lists/{id}/cards", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `[{"id":"c1","name":"Fix login","due":"2024-05-01T09:00:00.000Z","dueComplete":false},{"id":"c2","name":"Write tests","due":null,"dueComplete":false}]`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func okAnalysis() *fakeAnalyzer {
	return &fakeAnalyzer{result: analysis.Result{Status: analysis.StatusOK, Text: "**1. Concise Summary:**\n\n- Fine"}}
}

func TestRunBoardWithOverdueCard(t *testing.T) {
	server := newBoardServer(t)
	board := trello.NewClient(server.URL, "k", "s3cr3t", time.Second, zaptest.NewLogger(t))
	chat := &fakeChat{outcome: models.NotificationOutcome{Posted: true, Status: "Message posted successfully to C123."}}
	agent := okAnalysis()
	hub := &recordingBroadcaster{}

	p := New(board, &fakeMail{}, chat, agent, Options{BoardID: "B1", MailLabel: "project-updates", Now: func() time.Time { return fixedNow }}, zaptest.NewLogger(t))
	p.SetBroadcaster(hub)

	resp, err := p.Run(context.Background(), "req00001")
	require.NoError(t, err)

	boardSection := strings.SplitN(resp.RawReport, "\n\n\n", 2)[0]
	assert.Contains(t, boardSection, "Backlog**: 2 card(s)")
	assert.Contains(t, boardSection, "Total Cards: 2")
	overdue := strings.SplitN(boardSection, "**🚨 Overdue Tasks:**", 2)
	require.Len(t, overdue, 2)
	assert.Contains(t, overdue[1], "'Fix login' in list 'Backlog'")
	assert.NotContains(t, overdue[1], "Write tests")

	assert.Equal(t, resp.RawReport, agent.raw)
	assert.Equal(t, "**1. Concise Summary:**\n\n- Fine", resp.AgentAnalysis)
	assert.Equal(t, "Message posted successfully to C123.", resp.SlackNotificationStatus)
	assert.Equal(t, "req00001", resp.RequestID)

	require.Len(t, chat.posted, 1)
	assert.Equal(t, "📊 *Project Status Analysis - 2024-05-10*\n>>> **1. Concise Summary:**\n\n- Fine", chat.posted[0])

	require.Len(t, hub.messages, 1)
	var pushed models.ReportResponse
	require.NoError(t, json.Unmarshal(hub.messages[0], &pushed))
	assert.Equal(t, *resp, pushed)
}

func TestRunEmptyMailbox(t *testing.T) {
	board := &fakeBoard{snapshot: &models.BoardSnapshot{}}
	p := New(board, &fakeMail{messages: []models.MailMessage{}}, &fakeChat{}, okAnalysis(), Options{BoardID: "B1", MailLabel: "project-updates", Now: func() time.Time { return fixedNow }}, zaptest.NewLogger(t))

	resp, err := p.Run(context.Background(), "req00002")
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(resp.RawReport, "(No unread emails found with the label or error fetching)"))
	assert.Contains(t, resp.RawReport, "**Recent Email Updates (Label: project-updates):**\n  _(No unread emails found with the label or error fetching)_")
}

func TestRunAnalysisFailureSkipsNotification(t *testing.T) {
	board := &fakeBoard{snapshot: &models.BoardSnapshot{}}
	chat := &fakeChat{}
	agent := &fakeAnalyzer{result: analysis.Result{
		Status: analysis.StatusFailed,
		Text:   "Error during agent analysis: boom. Check logs (Req ID: req00003).",
	}}
	p := New(board, &fakeMail{}, chat, agent, Options{BoardID: "B1", MailLabel: "project-updates"}, zaptest.NewLogger(t))

	resp, err := p.Run(context.Background(), "req00003")
	require.NoError(t, err)

	assert.Contains(t, resp.AgentAnalysis, "Error during agent analysis")
	assert.True(t, strings.HasPrefix(resp.SlackNotificationStatus, "Skipped:"))
	assert.Equal(t, "Skipped: "+resp.AgentAnalysis, resp.SlackNotificationStatus)
	assert.Empty(t, chat.posted)
}

func TestRunSkippedAnalysisIsNotPosted(t *testing.T) {
	chat := &fakeChat{}
	agent := &fakeAnalyzer{result: analysis.Result{Status: analysis.StatusSkipped, Text: "Analysis skipped: Input report was empty."}}
	p := New(&fakeBoard{snapshot: &models.BoardSnapshot{}}, &fakeMail{}, chat, agent, Options{}, zaptest.NewLogger(t))

	resp, err := p.Run(context.Background(), "req")
	require.NoError(t, err)

	assert.Equal(t, "Skipped: Analysis skipped: Input report was empty.", resp.SlackNotificationStatus)
	assert.Empty(t, chat.posted)
}

func TestRunBoardTimeoutAbortsBeforeSideEffects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	board := trello.NewClient(server.URL, "k", "s3cr3t", 50*time.Millisecond, zaptest.NewLogger(t))
	mail := &fakeMail{}
	chat := &fakeChat{}
	hub := &recordingBroadcaster{}
	p := New(board, mail, chat, okAnalysis(), Options{BoardID: "B1"}, zaptest.NewLogger(t))
	p.SetBroadcaster(hub)

	resp, err := p.Run(context.Background(), "req00004")

	assert.Nil(t, resp)
	var apiErr *trello.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusGatewayTimeout, apiErr.StatusCode)
	assert.Empty(t, chat.posted, "no chat post is attempted")
	assert.Equal(t, 0, mail.calls, "mail is not marked read for an undelivered report")
	assert.Equal(t, 0, chat.fetchCall)
	assert.Empty(t, hub.messages)
}

func TestRunPanicInFetchBecomesError(t *testing.T) {
	p := New(&fakeBoard{snapshot: &models.BoardSnapshot{}}, &fakeMail{panics: true}, &fakeChat{}, okAnalysis(), Options{}, zaptest.NewLogger(t))

	resp, err := p.Run(context.Background(), "req")

	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox exploded")
}

func TestRunPostFailureIsReported(t *testing.T) {
	chat := &fakeChat{outcome: models.NotificationOutcome{Posted: false, Status: "Slack API Error: channel_not_found"}}
	p := New(&fakeBoard{snapshot: &models.BoardSnapshot{}}, &fakeMail{}, chat, okAnalysis(), Options{}, zaptest.NewLogger(t))

	resp, err := p.Run(context.Background(), "req")
	require.NoError(t, err)

	assert.Equal(t, "Slack API Error: channel_not_found", resp.SlackNotificationStatus)
	assert.Len(t, chat.posted, 1)
}
