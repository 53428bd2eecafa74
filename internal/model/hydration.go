package model

import "time"

// HydrationReport summarizes one cache hydration run.
type HydrationReport struct {
	RunID      string             `json:"runId"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
	Succeeded  int                `json:"succeeded"`
	Failed     int                `json:"failed"`
	Skipped    int                `json:"skipped"`
	Failures   []HydrationFailure `json:"failures"`
}

// HydrationFailure is one pair that could not be fetched.
type HydrationFailure struct {
	Symbol string    `json:"symbol"`
	Range  TimeRange `json:"range"`
	Error  string    `json:"error"`
}
