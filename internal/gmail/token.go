package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// Scope is the only OAuth scope requested. Modify is needed to clear UNREAD.
const Scope = gmail.GmailModifyScope

var (
	ErrTokenMissing       = errors.New("gmail token file not found")
	ErrCredentialsMissing = errors.New("gmail credentials file not found")
)

// tokenFile accepts both the oauth2.Token layout and the layout written by
// Google's Python client ("token" instead of "access_token").
type tokenFile struct {
	AccessToken  string    `json:"access_token"`
	Token        string    `json:"token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

func readOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrCredentialsMissing, credentialsPath)
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return config, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrTokenMissing, path)
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	tok := &oauth2.Token{
		AccessToken:  tf.AccessToken,
		TokenType:    tf.TokenType,
		RefreshToken: tf.RefreshToken,
		Expiry:       tf.Expiry,
	}
	if tok.AccessToken == "" {
		tok.AccessToken = tf.Token
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to save oauth token: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode oauth token: %w", err)
	}
	return nil
}

// loadTokenSource checks both files exist and that the stored token can produce a
// valid access token, refreshing it when a refresh token is present.
func loadTokenSource(ctx context.Context, credentialsPath, tokenPath string) (oauth2.TokenSource, error) {
	if _, err := os.Stat(tokenPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s", ErrTokenMissing, tokenPath)
	}
	config, err := readOAuthConfig(credentialsPath)
	if err != nil {
		return nil, err
	}
	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		return nil, err
	}

	ts := config.TokenSource(ctx, tok)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("invalid or expired credentials in %s: %w", tokenPath, err)
	}
	return ts, nil
}

// Authorize runs the interactive consent flow: it prints the consent URL to out,
// reads the authorization code from in and saves the resulting token to tokenPath.
func Authorize(ctx context.Context, credentialsPath, tokenPath string, in io.Reader, out io.Writer) error {
	config, err := readOAuthConfig(credentialsPath)
	if err != nil {
		return err
	}

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	_, _ = fmt.Fprintf(out, "Go to the following link in your browser then type the authorization code:\n%v\n", authURL)

	var authCode string
	if _, err := fmt.Fscan(in, &authCode); err != nil {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}

	tok, err := config.Exchange(ctx, strings.TrimSpace(authCode))
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Saving credential file to: %s\n", tokenPath)
	return saveToken(tokenPath, tok)
}
