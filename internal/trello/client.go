// Package trello reads lists and cards from a Trello board over its REST API.
package trello

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vdavid/statusreport/backend/internal/logging"
	"github.com/vdavid/statusreport/backend/internal/models"
)

// maxConcurrentCardFetches bounds the per-list card requests in FetchAll.
const maxConcurrentCardFetches = 4

// APIError is a fatal board failure. StatusCode is the HTTP status the caller should answer with.
type APIError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *APIError) Error() string {
	return e.Detail
}

func (e *APIError) Unwrap() error {
	return e.Err
}

type Client struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey, token string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type trelloList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type trelloCard struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Due         *string `json:"due"`
	DueComplete bool    `json:"dueComplete"`
}

// FetchLists returns the board's lists. Any failure is an *APIError.
func (c *Client) FetchLists(ctx context.Context, boardID string) ([]models.BoardList, error) {
	logger := logging.FromContext(ctx, c.logger)
	logger.Debug("Fetching Trello lists", zap.String("board_id", boardID))

	var raw []trelloList
	err := c.get(ctx, "/boards/"+url.PathEscape(boardID)+"/lists", url.Values{"cards": {"none"}}, &raw)
	if err != nil {
		apiErr := toListsError(err)
		logger.Error("Error fetching Trello lists", zap.Int("status", apiErr.StatusCode), zap.Error(err))
		return nil, apiErr
	}

	lists := make([]models.BoardList, 0, len(raw))
	for _, l := range raw {
		lists = append(lists, models.BoardList{ID: l.ID, Name: l.Name})
	}
	logger.Debug("Fetched Trello lists", zap.Int("count", len(lists)))
	return lists, nil
}

// FetchCardsForList returns the cards of a list. Failures are logged and yield an empty slice.
func (c *Client) FetchCardsForList(ctx context.Context, listID string) []models.BoardCard {
	logger := logging.FromContext(ctx, c.logger).With(zap.String("list_id", listID))

	var raw []trelloCard
	err := c.get(ctx, "/lists/"+url.PathEscape(listID)+"/cards", url.Values{"fields": {"name,due,dueComplete"}}, &raw)
	if err != nil {
		if isTimeout(err) {
			logger.Warn("Trello card fetch timed out")
		} else {
			logger.Warn("Failed to fetch cards for Trello list", zap.Error(err))
		}
		return []models.BoardCard{}
	}

	cards := make([]models.BoardCard, 0, len(raw))
	for _, rc := range raw {
		card := models.BoardCard{ID: rc.ID, Name: rc.Name, DueComplete: rc.DueComplete}
		if rc.Due != nil && *rc.Due != "" {
			due, err := time.Parse(time.RFC3339, *rc.Due)
			if err != nil {
				logger.Warn("Ignoring unparseable due date", zap.String("card", rc.Name), zap.String("due", *rc.Due))
			} else {
				card.Due = &due
			}
		}
		cards = append(cards, card)
	}
	return cards
}

// FetchAll returns the lists and each list's cards. Only the list fetch is fatal.
func (c *Client) FetchAll(ctx context.Context, boardID string) (*models.BoardSnapshot, error) {
	logger := logging.FromContext(ctx, c.logger)
	logger.Info("Fetching all Trello data")

	lists, err := c.FetchLists(ctx, boardID)
	if err != nil {
		return nil, err
	}

	cards := make([][]models.BoardCard, len(lists))
	var g errgroup.Group
	g.SetLimit(maxConcurrentCardFetches)
	for i, list := range lists {
		if list.ID == "" {
			continue
		}
		g.Go(func() error {
			cards[i] = c.FetchCardsForList(ctx, list.ID)
			return nil
		})
	}
	_ = g.Wait()

	snapshot := &models.BoardSnapshot{
		Lists:       lists,
		CardsByList: make(map[string][]models.BoardCard, len(lists)),
	}
	for i, list := range lists {
		if list.ID == "" {
			continue
		}
		snapshot.CardsByList[list.ID] = cards[i]
	}

	logger.Info("Finished fetching Trello data", zap.Int("lists", len(lists)))
	return snapshot, nil
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	params.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call Trello: %w", redactURL(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func toListsError(err error) *APIError {
	if isTimeout(err) {
		return &APIError{StatusCode: http.StatusGatewayTimeout, Detail: "Trello API request timed out.", Err: err}
	}

	status := http.StatusServiceUnavailable
	var se *statusError
	if errors.As(err, &se) {
		status = se.StatusCode
	}
	return &APIError{
		StatusCode: status,
		Detail:     fmt.Sprintf("Trello API Error: Could not fetch lists. %v", err),
		Err:        err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// redactURL drops the request URL, which carries the API key and token, from transport errors.
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
