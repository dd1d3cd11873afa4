package models

// MailMessage is an unread message under the project label.
type MailMessage struct {
	ID      string `json:"id"`
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
