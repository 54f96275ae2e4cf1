package models

// APIStatus represents the status of an API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse is the JSON envelope of the operational HTTP endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// ServiceStatus is the result of GET /status.
type ServiceStatus struct {
	Transport        string `json:"transport"`
	LiveSessions     int    `json:"live_sessions"`
	PendingFollowUps int    `json:"pending_follow_ups"`
	KnownMembers     int    `json:"known_members"`
	NextFollowUpAt   string `json:"next_follow_up_at,omitempty"`
	Uptime           string `json:"uptime"`
}
