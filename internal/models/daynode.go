package models

import "time"

// Daynode is the epoch record for one network day. Exactly one daynode is
// active at any time; it carries the rate table and the two cooperative
// job-lock flags. Only the flags are mutated after creation.
type Daynode struct {
	ID                  string    `json:"id"`
	Date                string    `json:"date"` // YYYY-MM-DD
	Active              bool      `json:"active"`
	DailyJobRunning     bool      `json:"daily_job_running"`
	MinuteJobRunning    bool      `json:"minute_job_running"`
	Rates               RateTable `json:"rates"`
	CXXInXAU            float64   `json:"cxx_in_xau"` // gold value of one CXX
	PriorToCurrentRatio float64   `json:"prior_to_current_ratio"`
	NextDaynodeID       string    `json:"next_daynode_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}
