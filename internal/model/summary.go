package model

import "time"

// ChatSummary is the response envelope of the external summarization
// service: one-shot, no ongoing state kept client-side.
type ChatSummary struct {
	Summary      string    `json:"summary"`
	Sentiment    string    `json:"sentiment"`
	Highlights   []string  `json:"highlights,omitempty"`
	ActionItems  []string  `json:"action_items,omitempty"`
	FollowUps    []string  `json:"follow_up_questions,omitempty"`
	MessageCount int       `json:"message_count"`
	From         time.Time `json:"from,omitempty"`
	To           time.Time `json:"to,omitempty"`
}
