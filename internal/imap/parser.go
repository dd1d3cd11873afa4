package imap

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"

	"github.com/vdavid/statusreport/backend/internal/models"
)

// ParseMessage converts a fetched IMAP message to a MailMessage. enmime prefers the
// text/plain part and converts HTML-only bodies to text.
func ParseMessage(imapMsg *imap.Message) (models.MailMessage, error) {
	if imapMsg == nil {
		return models.MailMessage{}, fmt.Errorf("imap message is nil")
	}

	var body io.Reader
	for _, literal := range imapMsg.Body {
		if literal != nil {
			body = literal
			break
		}
	}
	if body == nil {
		return models.MailMessage{}, fmt.Errorf("message %d has no body", imapMsg.Uid)
	}

	envelope, err := enmime.ReadEnvelope(body)
	if err != nil {
		return models.MailMessage{}, fmt.Errorf("failed to parse email body: %w", err)
	}

	msg := models.MailMessage{
		ID:      strconv.FormatUint(uint64(imapMsg.Uid), 10),
		Subject: envelope.GetHeader("Subject"),
		Sender:  formatSender(envelope),
		Body:    strings.TrimSpace(envelope.Text),
	}
	if msg.Subject == "" {
		msg.Subject = "No Subject"
	}
	if msg.Sender == "" {
		msg.Sender = "Unknown Sender"
	}
	return msg, nil
}

// formatSender formats the first From address like a mail client would show it.
func formatSender(envelope *enmime.Envelope) string {
	addresses, err := envelope.AddressList("From")
	if err != nil || len(addresses) == 0 {
		return strings.TrimSpace(envelope.GetHeader("From"))
	}

	address := addresses[0]
	if address.Name != "" {
		return fmt.Sprintf("%s <%s>", address.Name, address.Address)
	}
	return address.Address
}
