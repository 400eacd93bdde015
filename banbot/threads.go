package banbot

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-banbot/models"
)

// deletedAuthor is what reddit reports for removed or deleted accounts
const deletedAuthor = "[deleted]"

// CollectThreads returns the ids of top threads not processed in an earlier run
func (b *Bot) CollectThreads(ctx context.Context) []string {
	b.log.WithFields(logrus.Fields{
		"subreddit": b.settings.Subreddit,
		"window":    b.settings.ThreadWindow,
	}).Info("Fetching top threads")

	threads, err := b.platform.FetchTopThreads(ctx, b.settings.Subreddit, b.settings.ThreadWindow, b.settings.ThreadLimit)
	if err != nil {
		b.log.WithError(err).Error("Failed to fetch top threads")
		return nil
	}

	ids := make([]string, 0, len(threads))
	for _, thread := range threads {
		if b.store.HasThread(thread.ID) {
			continue
		}
		b.store.AddThread(thread.ID)
		ids = append(ids, thread.ID)
	}

	b.flush("threads", b.store.FlushThreads)

	b.log.WithFields(logrus.Fields{
		"fetched": len(threads),
		"new":     len(ids),
	}).Info("Collected threads")

	return ids
}

// SeedBannedUsers adds the subreddit's current bans to an empty report list
// so already-banned accounts are never scored
func (b *Bot) SeedBannedUsers(ctx context.Context) {
	if !b.settings.SeedBanned || len(b.store.Reports()) > 0 {
		return
	}

	b.log.WithField("subreddit", b.settings.Subreddit).Info("Fetching initial banned users")

	users, err := b.platform.FetchBannedUsers(ctx, b.settings.Subreddit)
	if err != nil {
		b.log.WithError(err).Error("Failed to fetch banned users")
		return
	}

	for _, user := range users {
		b.store.AddReport(models.UserReport{User: user, TotalBadKarma: models.AlreadyBannedKarma})
	}

	b.log.WithField("count", len(users)).Info("Seeded already banned users")
}
