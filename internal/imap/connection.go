package imap

import (
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
)

// ConnectToIMAP dials the IMAP server. The timeout bounds the dial and every later command.
// useTLS: true for production (TLS), false for tests (non-TLS).
func ConnectToIMAP(server string, useTLS bool, timeout time.Duration) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: timeout,
	}

	var c *client.Client
	var err error
	if useTLS {
		c, err = client.DialWithDialerTLS(dialer, server, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
	} else {
		// Non-TLS connection for testing
		c, err = client.DialWithDialer(dialer, server)
		if err != nil {
			return nil, fmt.Errorf("failed to dial: %w", err)
		}
	}

	c.Timeout = timeout
	return c, nil
}

// Login authenticates with the IMAP server.
func Login(c *client.Client, username, password string) error {
	if err := c.Login(username, password); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	return nil
}
