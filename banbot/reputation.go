package banbot

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-banbot/models"
	"github.com/brettboylen/reddit-banbot/store"
)

// NewBadSet lowercases the bad subreddit names for case-insensitive lookup
func NewBadSet(subreddits []string) map[string]struct{} {
	set := make(map[string]struct{}, len(subreddits))
	for _, s := range subreddits {
		set[strings.ToLower(s)] = struct{}{}
	}
	return set
}

// Aggregate sums the score of the items posted in a bad subreddit. With
// breakdown set it also returns the per-subreddit sums, ordered as in order;
// the total always equals the sum of the breakdown.
func Aggregate(items []models.ActivityItem, badSet map[string]struct{}, order []string, breakdown bool) (int, []models.SubredditKarma) {
	total := 0
	perSub := make(map[string]int)

	for _, item := range items {
		name := strings.ToLower(item.Subreddit)
		if _, bad := badSet[name]; !bad {
			continue
		}
		total += item.Score
		perSub[name] += item.Score
	}

	if !breakdown {
		return total, nil
	}

	var karma []models.SubredditKarma
	listed := make(map[string]struct{}, len(order))
	for _, sub := range order {
		name := strings.ToLower(sub)
		if _, dup := listed[name]; dup {
			continue
		}
		listed[name] = struct{}{}
		if score, ok := perSub[name]; ok {
			karma = append(karma, models.SubredditKarma{Subreddit: sub, BadKarma: score})
		}
	}

	return total, karma
}

// Qualifies is the ban rule: a total at or above the threshold is banned
func Qualifies(total, threshold int) bool {
	return total >= threshold
}

// ScoreUsers scores each account not already reported and returns the
// reports at or above the threshold, highest score first. The exclusion
// store's report list is updated, sorted and flushed.
func (b *Bot) ScoreUsers(ctx context.Context, users []string) []models.UserReport {
	var reports []models.UserReport
	seen := make(map[string]struct{})

	for _, user := range users {
		if ctx.Err() != nil {
			break
		}
		if _, dup := seen[user]; dup {
			continue
		}
		seen[user] = struct{}{}

		// already reported or banned in an earlier run
		if b.store.HasReport(user) {
			continue
		}

		report, err := b.scoreUser(ctx, user)
		if err != nil {
			b.log.WithError(err).WithField("user", user).Error("Failed to fetch user activity")
			continue
		}
		b.setState(user, models.StateScored)

		if !Qualifies(report.TotalBadKarma, b.settings.BadKarmaThreshold) {
			b.setState(user, models.StateBelowThreshold)
			continue
		}

		b.setState(user, models.StateReported)
		b.store.AddReport(report)
		reports = append(reports, report)

		b.log.WithFields(logrus.Fields{
			"user":      user,
			"bad_karma": report.TotalBadKarma,
		}).Info("User over bad karma threshold")
	}

	store.SortReports(reports)
	b.store.SortReports()
	b.flush("reports", b.store.FlushReports)

	b.log.WithFields(logrus.Fields{
		"scored":   len(seen),
		"reported": len(reports),
	}).Info("Scored users")

	return reports
}

func (b *Bot) scoreUser(ctx context.Context, user string) (models.UserReport, error) {
	b.log.WithField("user", user).Debug("Fetching comments from user")

	items, err := b.platform.FetchUserOverview(ctx, user, b.settings.UserCommentSort, b.settings.OverviewLimit)
	if err != nil {
		return models.UserReport{}, err
	}

	total, breakdown := Aggregate(items, b.badSet, b.settings.BadSubreddits, b.settings.Breakdown)
	return models.UserReport{
		User:          user,
		BadKarma:      breakdown,
		TotalBadKarma: total,
	}, nil
}
