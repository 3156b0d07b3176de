package config

import "time"

const (
	// Queue
	MaxInterestTags         = 10
	DefaultStaleAfter       = 15 * time.Second
	DefaultFallbackAfter    = 30 * time.Second
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultMatchLookupTTL   = 2 * time.Minute
	DefaultQueueSweepPeriod = 5 * time.Second

	// Messages
	MaxMessageLength = 2000
	MaxHistoryPage   = 200

	// Relationships
	MaxFriendRequestMessage = 280
	MaxReportReason         = 1000
)

// ReportCategories maps a report category to the severity stored with the report.
var ReportCategories = map[string]int{
	"spam":       5,
	"harassment": 50,
	"hate":       50,
	"sexual":     50,
	"underage":   250,
	"violence":   250,
	"other":      5,
}
