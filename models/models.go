package models

import (
	"time"
)

// Thread represents a submission from a subreddit listing
type Thread struct {
	ID          string `json:"id"`
	Fullname    string `json:"name"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Subreddit   string `json:"subreddit"`
	Score       int    `json:"score"`
	NumComments int    `json:"num_comments"`
}

// Comment is a node in a thread's comment tree.
// A comment without replies has a nil Replies slice.
type Comment struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Replies []Comment `json:"replies,omitempty"`
}

// ActivityItem is a single comment or submission from a user's history
type ActivityItem struct {
	ID        string `json:"id"`
	Fullname  string `json:"name"`
	Kind      string `json:"kind"`
	Subreddit string `json:"subreddit"`
	LinkID    string `json:"link_id"`
	Permalink string `json:"permalink"`
	Author    string `json:"author"`
	Score     int    `json:"score"`
}

// SubredditKarma is the summed karma an account earned in one bad subreddit
type SubredditKarma struct {
	Subreddit string `json:"subreddit"`
	BadKarma  int    `json:"badKarma"`
}

// UserReport is the scored record for one account.
// BadKarma is only populated when breakdown scoring is enabled.
type UserReport struct {
	User          string           `json:"user"`
	BadKarma      []SubredditKarma `json:"badKarma,omitempty"`
	TotalBadKarma int              `json:"totalBadKarma"`
}

// AlreadyBannedKarma marks reports seeded from the subreddit's existing ban list
const AlreadyBannedKarma = -1

// BanRequest holds everything needed to issue a ban
type BanRequest struct {
	Username     string
	Message      string
	Reason       string
	Note         string
	DurationDays int // 0 is a permanent ban
}

// AccountState tracks an account through a single pipeline run
type AccountState string

const (
	StateUnseen         AccountState = "unseen"
	StateParticipant    AccountState = "participant"
	StateScored         AccountState = "scored"
	StateBelowThreshold AccountState = "below_threshold"
	StateReported       AccountState = "reported"
	StateBanned         AccountState = "banned"
	StateReportFailed   AccountState = "report_failed"
)

const (
	ActionBan           = "ban"
	ActionRemoveComment = "remove_comment"
	ActionDryRun        = "dry_run"

	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ModerationAction is one entry in the moderation log
type ModerationAction struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Subreddit string    `json:"subreddit"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail"`
	BadKarma  int       `json:"bad_karma"`
	CreatedAt time.Time `json:"created_at"`
}
