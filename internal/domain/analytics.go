package domain

import "time"

type AnalyticsSnapshot struct {
	ID         int64
	ContentID  string
	Platform   Platform
	Views      int64
	Likes      int64
	Shares     int64
	Comments   int64
	RecordedAt time.Time
}
