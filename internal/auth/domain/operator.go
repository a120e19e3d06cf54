package domain

import "time"

// Operator is the holder of a signed operator token
type Operator struct {
	Name      string    `json:"name"`
	TokenID   string    `json:"token_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
