package models

type ReportResponse struct {
	RawReport               string `json:"raw_report"`
	AgentAnalysis           string `json:"agent_analysis"`
	SlackNotificationStatus string `json:"slack_notification_status"`
	RequestID               string `json:"request_id"`
}

type ErrorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id"`
}

type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}
