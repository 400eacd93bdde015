package banbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-banbot/models"
)

// maxReasonLength is reddit's limit for ban reasons and mod notes
const maxReasonLength = 300

// BanMessage is the message sent to the banned user
func BanMessage(s Settings, badKarma int) string {
	return fmt.Sprintf(
		"You have been banned from /r/%s %s for having %d bad karma out of our limit of %d in these subreddits: %s",
		s.Subreddit, durationText(s.BanDurationDays), badKarma, s.BadKarmaThreshold, strings.Join(s.BadSubreddits, ", "),
	)
}

// BanReason is the short reason shown to moderators
func BanReason(s Settings, badKarma int) string {
	reason := fmt.Sprintf("%d/%d bad karma in %s", badKarma, s.BadKarmaThreshold, strings.Join(s.BadSubreddits, ", "))
	return truncate(reason, maxReasonLength)
}

// BuildBanRequest assembles the ban for one report
func BuildBanRequest(s Settings, report models.UserReport) models.BanRequest {
	message := BanMessage(s, report.TotalBadKarma)
	return models.BanRequest{
		Username:     report.User,
		Message:      message,
		Reason:       BanReason(s, report.TotalBadKarma),
		Note:         truncate(message, maxReasonLength),
		DurationDays: s.BanDurationDays,
	}
}

func durationText(days int) string {
	switch {
	case days <= 0:
		return "permanently"
	case days == 1:
		return "for 1 day"
	default:
		return fmt.Sprintf("for %d days", days)
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// Execute bans every reported account in order, removing their comments
// from the subreddit when configured. In dry-run mode the reports are only
// logged. Each ban and removal is independent: failures are logged and the
// loop moves on.
func (b *Bot) Execute(ctx context.Context, reports []models.UserReport) {
	if len(reports) == 0 {
		b.log.Info("No users over the bad karma threshold")
		return
	}

	if b.settings.DryRun {
		b.log.WithField("count", len(reports)).Info("Not banning, but here's the list")
		for _, report := range reports {
			b.logReport(report)
			b.record(report.User, models.ActionDryRun, models.StatusSkipped, BanReason(b.settings, report.TotalBadKarma), report.TotalBadKarma)
		}
		return
	}

	b.log.WithField("count", len(reports)).Info("Banning users")
	for _, report := range reports {
		if ctx.Err() != nil {
			return
		}
		b.logReport(report)
		b.banUser(ctx, report)
	}
}

func (b *Bot) logReport(report models.UserReport) {
	fields := logrus.Fields{
		"user":      report.User,
		"bad_karma": report.TotalBadKarma,
	}
	for _, k := range report.BadKarma {
		fields["karma_"+k.Subreddit] = k.BadKarma
	}
	b.log.WithFields(fields).Info("Ban report")
}

func (b *Bot) banUser(ctx context.Context, report models.UserReport) {
	ban := BuildBanRequest(b.settings, report)

	if err := b.platform.BanUser(ctx, b.settings.Subreddit, ban); err != nil {
		b.setState(report.User, models.StateReportFailed)
		b.record(report.User, models.ActionBan, models.StatusFailed, err.Error(), report.TotalBadKarma)
		b.log.WithError(err).WithField("user", report.User).Error("Failed to ban user")
		return
	}

	b.setState(report.User, models.StateBanned)
	b.record(report.User, models.ActionBan, models.StatusOK, ban.Reason, report.TotalBadKarma)
	b.log.WithFields(logrus.Fields{
		"user":      report.User,
		"subreddit": b.settings.Subreddit,
	}).Info("Banned user")

	if b.settings.RemoveComments {
		b.removeComments(ctx, report)
	}
}

// removeComments removes the user's comments posted in the moderated subreddit
func (b *Bot) removeComments(ctx context.Context, report models.UserReport) {
	comments, err := b.platform.FetchUserComments(ctx, report.User)
	if err != nil {
		b.log.WithError(err).WithField("user", report.User).Error("Failed to fetch user comments for removal")
		return
	}

	removed := 0
	for _, c := range comments {
		if ctx.Err() != nil {
			return
		}
		if !b.inModeratedSubreddit(c.Subreddit) {
			continue
		}

		if err := b.platform.RemoveItem(ctx, c.Fullname); err != nil {
			b.record(report.User, models.ActionRemoveComment, models.StatusFailed, c.Fullname+": "+err.Error(), report.TotalBadKarma)
			b.log.WithError(err).WithFields(logrus.Fields{
				"user":    report.User,
				"comment": c.Fullname,
			}).Error("Failed to remove comment")
			continue
		}

		removed++
		b.record(report.User, models.ActionRemoveComment, models.StatusOK, c.Fullname, report.TotalBadKarma)
		b.log.WithFields(logrus.Fields{
			"comment":   c.Fullname,
			"link":      c.LinkID,
			"user":      report.User,
			"subreddit": c.Subreddit,
		}).Info("Removed comment")
	}

	b.log.WithFields(logrus.Fields{
		"user":    report.User,
		"removed": removed,
	}).Info("Finished removing comments")
}

func (b *Bot) inModeratedSubreddit(subreddit string) bool {
	if b.settings.RemoveCaseSensitive {
		return subreddit == b.settings.Subreddit
	}
	return strings.EqualFold(subreddit, b.settings.Subreddit)
}
