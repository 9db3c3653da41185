package models

import "time"

// UsageRecord accumulates daily usage counters for an org/user pair.
// Period boundaries are the local calendar day the report arrived in.
type UsageRecord struct {
	OrgID         string    `json:"org_id"`
	UserID        string    `json:"user_id"`
	Period        string    `json:"period"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	TokensInput   int64     `json:"tokens_input"`
	TokensOutput  int64     `json:"tokens_output"`
	APICalls      int64     `json:"api_calls"`
	SessionsCount int64     `json:"sessions_count"`
	MessagesCount int64     `json:"messages_count"`
	CostUSD       float64   `json:"cost_usd"`
}

// ExecutionLogEntry is an audit record emitted by the execution plane.
type ExecutionLogEntry struct {
	OrgID     string         `json:"org_id"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Source    string         `json:"source"`
	Entry     map[string]any `json:"entry"`
}
