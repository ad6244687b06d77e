package model

import "time"

// STBNode is a device-farm node known to the external execution service.
type STBNode struct {
	ID     int64  `json:"id"`
	NodeID string `json:"node_id"`
}

// STBNodeConfig records which NatCo a node serves. Only one config per
// node is active at a time.
type STBNodeConfig struct {
	ID        int64     `json:"id"`
	NodeID    string    `json:"node_id"`
	NatCo     string    `json:"natco"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type ResultOutcome string

const (
	ResultPass  ResultOutcome = "pass"
	ResultFail  ResultOutcome = "fail"
	ResultError ResultOutcome = "error"
)

// STBResult is one execution of a script on the device farm.
type STBResult struct {
	ID            int64         `json:"id"`
	ResultID      string        `json:"result_id"`
	JobUID        string        `json:"job_uid"`
	ResultURL     string        `json:"result_url"`
	TriageURL     string        `json:"triage_url"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	ScriptID      int64         `json:"script"`
	Result        ResultOutcome `json:"result"`
	FailureReason string        `json:"failure_reason"`
}
