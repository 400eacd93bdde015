package banbot

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-banbot/models"
	"github.com/brettboylen/reddit-banbot/store"
)

// Platform is the subset of the Reddit API the bot needs
type Platform interface {
	FetchTopThreads(ctx context.Context, subreddit, window string, limit int) ([]models.Thread, error)
	FetchCommentTree(ctx context.Context, threadID string) ([]models.Comment, error)
	FetchUserOverview(ctx context.Context, user, sort string, limit int) ([]models.ActivityItem, error)
	FetchUserComments(ctx context.Context, user string) ([]models.ActivityItem, error)
	FetchBannedUsers(ctx context.Context, subreddit string) ([]string, error)
	BanUser(ctx context.Context, subreddit string, ban models.BanRequest) error
	RemoveItem(ctx context.Context, fullname string) error
}

// ActionRecorder persists moderation actions
type ActionRecorder interface {
	RecordAction(action *models.ModerationAction) error
}

// Settings configures a run. It is built once at startup and never mutated.
type Settings struct {
	Subreddit           string
	BadSubreddits       []string
	ThreadWindow        string
	ThreadLimit         int
	UserCommentSort     string
	OverviewLimit       int
	BadKarmaThreshold   int
	BanDurationDays     int // 0 bans permanently
	RemoveComments      bool
	RemoveCaseSensitive bool
	DryRun              bool
	Breakdown           bool
	SeedBanned          bool
}

// RunResult summarizes a pipeline run
type RunResult struct {
	RunID        string
	Threads      []string
	Participants []string
	Reports      []models.UserReport
	States       map[string]models.AccountState
}

// Bot runs the ban pipeline one stage at a time
type Bot struct {
	platform Platform
	store    *store.ExclusionStore
	recorder ActionRecorder
	settings Settings
	badSet   map[string]struct{}
	log      *logrus.Logger
	runID    string
	states   map[string]models.AccountState
}

// NewBot creates a new bot. recorder may be nil.
func NewBot(
	platform Platform,
	exclusions *store.ExclusionStore,
	recorder ActionRecorder,
	settings Settings,
	log *logrus.Logger,
) *Bot {
	return &Bot{
		platform: platform,
		store:    exclusions,
		recorder: recorder,
		settings: settings,
		badSet:   NewBadSet(settings.BadSubreddits),
		log:      log,
		runID:    time.Now().UTC().Format("20060102T150405.000Z"),
		states:   make(map[string]models.AccountState),
	}
}

// RunID identifies this run in the moderation log
func (b *Bot) RunID() string {
	return b.runID
}

// Run executes the whole pipeline. Per-thread and per-account failures are
// logged and skipped; only a cancelled context stops the run early.
func (b *Bot) Run(ctx context.Context) (*RunResult, error) {
	b.log.WithFields(logrus.Fields{
		"run_id":         b.runID,
		"subreddit":      b.settings.Subreddit,
		"bad_subreddits": b.settings.BadSubreddits,
		"threshold":      b.settings.BadKarmaThreshold,
		"dry_run":        b.settings.DryRun,
	}).Info("Starting ban run")

	result := &RunResult{RunID: b.runID}

	result.Threads = b.CollectThreads(ctx)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	b.SeedBannedUsers(ctx)

	result.Participants = b.CollectParticipants(ctx, result.Threads)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	result.Reports = b.ScoreUsers(ctx, result.Participants)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	b.Execute(ctx, result.Reports)

	result.States = b.states
	return result, ctx.Err()
}

func (b *Bot) setState(user string, state models.AccountState) {
	b.states[user] = state
}

// record writes to the moderation log when one is configured
func (b *Bot) record(user, action, status, detail string, badKarma int) {
	if b.recorder == nil {
		return
	}

	err := b.recorder.RecordAction(&models.ModerationAction{
		RunID:     b.runID,
		Subreddit: b.settings.Subreddit,
		Username:  user,
		Action:    action,
		Status:    status,
		Detail:    detail,
		BadKarma:  badKarma,
	})
	if err != nil {
		b.log.WithError(err).WithField("user", user).Warn("Failed to record moderation action")
	}
}

func (b *Bot) flush(what string, fn func() error) {
	if err := fn(); err != nil {
		b.log.WithError(fmt.Errorf("flush %s: %w", what, err)).Error("Failed to checkpoint exclusion store")
	}
}
