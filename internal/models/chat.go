package models

// ChatMessage is a channel message that survived filtering. User holds the display name.
type ChatMessage struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"ts"`
}

// NotificationOutcome is the result of posting the analysis to the channel.
type NotificationOutcome struct {
	Posted bool
	Status string
}
