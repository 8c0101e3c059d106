package model

import "time"

// StructuredOverride maps canonical field names to values inferred from the
// first data row of an uploaded table.
type StructuredOverride map[string]float64

// PlanResult is the raw text returned by the completion API together with the
// inputs and usage that produced it. Text has no guaranteed structure.
type PlanResult struct {
	ID           string      `json:"id"`
	Text         string      `json:"text"`
	Model        string      `json:"model"`
	Profile      UserProfile `json:"profile"`
	InputTokens  int64       `json:"input_tokens"`
	OutputTokens int64       `json:"output_tokens"`
	CreatedAt    time.Time   `json:"created_at"`
}
