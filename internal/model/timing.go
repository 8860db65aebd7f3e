package model

import "time"

// Timing records how long one report's extraction call took.
type Timing struct {
	ReportID  string        `json:"report_id"`
	Model     string        `json:"model"`
	Elapsed   time.Duration `json:"elapsed"`
	CreatedAt time.Time     `json:"created_at"`
}
