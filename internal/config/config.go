package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	// MailboxGmail reads the mailbox through the Gmail REST API.
	MailboxGmail = "gmail"
	// MailboxIMAP reads the mailbox over IMAP, treating the label as a folder.
	MailboxIMAP = "imap"
)

type Config struct {
	Environment    string `env:"STATUS_ENV" envDefault:"development"`
	ProjectName    string `env:"PROJECT_NAME" envDefault:"Project Status Reporter API"`
	ProjectVersion string `env:"PROJECT_VERSION" envDefault:"1.6.0"`
	Port           string `env:"PORT" envDefault:"8000"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile        string `env:"LOG_FILE"`

	TrelloAPIKey  string        `env:"TRELLO_API_KEY"`
	TrelloToken   string        `env:"TRELLO_TOKEN"`
	TrelloBoardID string        `env:"TRELLO_BOARD_ID"`
	TrelloBaseURL string        `env:"TRELLO_BASE_URL" envDefault:"https://api.trello.com/1"`
	TrelloTimeout time.Duration `env:"TRELLO_TIMEOUT" envDefault:"15s"`

	MailboxProvider      string        `env:"MAILBOX_PROVIDER" envDefault:"gmail"`
	MailLabel            string        `env:"MAIL_LABEL" envDefault:"project-updates"`
	MailMaxResults       int           `env:"MAIL_MAX_RESULTS" envDefault:"5"`
	GmailTokenPath       string        `env:"GMAIL_TOKEN_PATH" envDefault:"token.json"`
	GmailCredentialsPath string        `env:"GMAIL_CREDENTIALS_PATH" envDefault:"credentials.json"`
	GmailTimeout         time.Duration `env:"GMAIL_TIMEOUT" envDefault:"20s"`

	IMAPServer   string        `env:"IMAP_SERVER"`
	IMAPUsername string        `env:"IMAP_USERNAME"`
	IMAPPassword string        `env:"IMAP_PASSWORD"`
	IMAPFolder   string        `env:"IMAP_FOLDER"`
	IMAPUseTLS   bool          `env:"IMAP_USE_TLS" envDefault:"true"`
	IMAPTimeout  time.Duration `env:"IMAP_TIMEOUT" envDefault:"10s"`

	SlackBotToken     string        `env:"SLACK_BOT_TOKEN"`
	SlackChannelID    string        `env:"SLACK_CHANNEL_ID"`
	SlackHistoryLimit int           `env:"SLACK_HISTORY_LIMIT" envDefault:"20"`
	SlackTimeout      time.Duration `env:"SLACK_TIMEOUT" envDefault:"15s"`

	GoogleAPIKey     string        `env:"GOOGLE_API_KEY"`
	GeminiModelName  string        `env:"GEMINI_MODEL_NAME" envDefault:"gemini-2.0-flash"`
	GeminiBaseURL    string        `env:"GEMINI_BASE_URL"`
	AgentTemperature float32       `env:"AGENT_TEMPERATURE" envDefault:"0.4"`
	AgentTimeout     time.Duration `env:"AGENT_TIMEOUT" envDefault:"60s"`
}

// LoadDotEnv loads .env into the process environment in development.
// Variables already set are kept.
func LoadDotEnv() {
	if environment := os.Getenv("STATUS_ENV"); environment == "" || environment == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}
}

func NewConfig() (*Config, error) {
	LoadDotEnv()

	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if config.IMAPFolder == "" {
		config.IMAPFolder = config.MailLabel
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"TRELLO_API_KEY", c.TrelloAPIKey},
		{"TRELLO_TOKEN", c.TrelloToken},
		{"TRELLO_BOARD_ID", c.TrelloBoardID},
		{"SLACK_BOT_TOKEN", c.SlackBotToken},
		{"SLACK_CHANNEL_ID", c.SlackChannelID},
		{"GOOGLE_API_KEY", c.GoogleAPIKey},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if err := validatePort(c.Port); err != nil {
		return fmt.Errorf("PORT is not a valid port number: %w", err)
	}

	if parsed, err := url.Parse(c.TrelloBaseURL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("TRELLO_BASE_URL must use http:// or https:// scheme")
	}

	if c.MailMaxResults <= 0 {
		return fmt.Errorf("MAIL_MAX_RESULTS must be positive")
	}
	if c.SlackHistoryLimit <= 0 {
		return fmt.Errorf("SLACK_HISTORY_LIMIT must be positive")
	}

	switch c.MailboxProvider {
	case MailboxGmail:
	case MailboxIMAP:
		if c.IMAPServer == "" {
			return fmt.Errorf("IMAP_SERVER is required when MAILBOX_PROVIDER is imap")
		}
		if c.IMAPUsername == "" {
			return fmt.Errorf("IMAP_USERNAME is required when MAILBOX_PROVIDER is imap")
		}
		if c.IMAPPassword == "" {
			return fmt.Errorf("IMAP_PASSWORD is required when MAILBOX_PROVIDER is imap")
		}
	default:
		return fmt.Errorf("MAILBOX_PROVIDER must be 'gmail' or 'imap'")
	}

	return nil
}

// MailQuery is the Gmail search query selecting unread messages under the configured label.
func (c *Config) MailQuery() string {
	return fmt.Sprintf("label:%s is:unread", c.MailLabel)
}

func validatePort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil {
		return err
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("%d is out of range", n)
	}
	return nil
}
