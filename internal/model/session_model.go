package model

import "time"

// Session is a persisted, resumable conversation. Id is backend-issued
// and absent until the first envelope of a turn supplies it; a session
// is only materialized into the store once it has at least one message.
type Session struct {
	Id        string     `json:"id"`
	Preview   string     `json:"preview"`
	CreatedAt time.Time  `json:"createdAt"`
	Messages  []*Message `json:"messages"`
}
