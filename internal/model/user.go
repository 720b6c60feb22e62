package model

import "time"

type UserPublic struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	IsOnline  bool      `json:"is_online,omitempty"`
	LastSeen  time.Time `json:"last_seen,omitempty"`
}
