package testutil

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer represents a test IMAP server instance.
type TestIMAPServer struct {
	Server   *server.Server
	Address  string
	Backend  *memory.Backend
	username string
	password string
}

// NewTestIMAPServer starts an IMAP server with an in-memory backend on a random
// local port. It is closed when the test finishes.
// The memory backend creates a default user with username "username" and password "password".
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	be := memory.New()

	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		_ = s.Serve(listener)
	}()

	t.Cleanup(func() {
		_ = s.Close()
	})

	return &TestIMAPServer{
		Server:   s,
		Address:  listener.Addr().String(),
		Backend:  be,
		username: "username",
		password: "password",
	}
}

// Username returns the default test username.
func (s *TestIMAPServer) Username() string {
	return s.username
}

// Password returns the default test password.
func (s *TestIMAPServer) Password() string {
	return s.password
}

// Connect creates a new logged-in IMAP client connection to the test server.
func (s *TestIMAPServer) Connect(t *testing.T) (*imapclient.Client, func()) {
	t.Helper()

	client, err := imapclient.Dial(s.Address)
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}

	if err := client.Login(s.username, s.password); err != nil {
		_ = client.Logout()
		t.Fatalf("Failed to login: %v", err)
	}

	cleanup := func() {
		_ = client.Logout()
	}

	return client, cleanup
}

// EnsureFolder creates the folder for the default user if it doesn't exist.
func (s *TestIMAPServer) EnsureFolder(t *testing.T, folderName string) {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select(folderName, true); err == nil {
		return
	}
	if err := client.Create(folderName); err != nil {
		t.Fatalf("Failed to create folder %s: %v", folderName, err)
	}
}

// AddMessage appends a plain-text message to the folder and returns its UID.
func (s *TestIMAPServer) AddMessage(t *testing.T, folderName, messageID, subject, from, body string, seen bool) uint32 {
	t.Helper()

	raw := fmt.Sprintf("Message-ID: %s\r\nDate: %s\r\nFrom: %s\r\nTo: team@example.com\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		messageID, time.Now().Format(time.RFC1123Z), from, subject, body)
	return s.AddRawMessage(t, folderName, messageID, raw, seen)
}

// AddRawMessage appends an RFC 822 message carrying the given Message-ID and returns its UID.
func (s *TestIMAPServer) AddRawMessage(t *testing.T, folderName, messageID, raw string, seen bool) uint32 {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	var flags []string
	if seen {
		flags = []string{imap.SeenFlag}
	}
	if err := client.Append(folderName, flags, time.Now(), strings.NewReader(raw)); err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}

	if _, err := client.Select(folderName, true); err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-ID", messageID)
	uids, err := client.UidSearch(criteria)
	if err != nil {
		t.Fatalf("Failed to search for message: %v", err)
	}
	if len(uids) == 0 {
		t.Fatalf("Message not found after append")
	}

	return uids[0]
}

// IsSeen reports whether the message with the given UID carries the \Seen flag.
func (s *TestIMAPServer) IsSeen(t *testing.T, folderName string, uid uint32) bool {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select(folderName, true); err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	messages := make(chan *imap.Message, 1)
	if err := client.UidFetch(seqSet, []imap.FetchItem{imap.FetchFlags, imap.FetchUid}, messages); err != nil {
		t.Fatalf("Failed to fetch flags: %v", err)
	}

	for msg := range messages {
		for _, flag := range msg.Flags {
			if flag == imap.SeenFlag {
				return true
			}
		}
	}
	return false
}
