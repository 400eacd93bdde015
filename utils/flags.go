package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "BANBOT"

// RegisterFlags defines the pipeline flags and their defaults
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeySubreddit, "", "Subreddit to moderate (required)")
	fs.StringSlice(KeyBadSubs, nil, "Comma separated subreddits whose karma counts against a user")
	fs.String(KeyThreadSort, "week", "Top threads window: hour, day, week, month, year or all")
	fs.Int(KeyThreadLimit, 100, "Number of top threads to scan")
	fs.String(KeyUserCommentSort, "new", "Sort order of a user's history: new, hot, top or controversial")
	fs.Int(KeyOverviewLimit, 100, "Number of history items fetched per user")
	fs.Int(KeyBadKarma, 100, "Bad karma at or above which a user is banned")
	fs.Int(KeyBanDuration, 0, "Ban length in days, 0 bans permanently")
	fs.Bool(KeyRemoveComments, false, "Remove banned users' comments from the subreddit")
	fs.Bool(KeyRemoveCaseSensitive, false, "Match the subreddit name case-sensitively when removing comments")
	fs.Bool(KeySave, false, "Keep processed threads, users and reports between runs")
	fs.Bool(KeyDryRun, false, "Report who would be banned without banning anyone")
	fs.Bool(KeyBreakdown, false, "Record bad karma per subreddit in the report")
	fs.Bool(KeySeedBanned, true, "Treat users already banned from the subreddit as reported")
	fs.StringSlice(KeyExcludeUsers, []string{"AutoModerator"}, "Users that are never scored")
	fs.String(KeySavedDir, "saved", "Directory of the saved exclusion files")
	fs.String(KeyDBPath, "saved/banbot.db", "SQLite moderation log, empty to disable")
	fs.Duration(KeyRequestDelay, 1100*time.Millisecond, "Minimum delay between Reddit API calls")
}

// BindFlags binds every flag in fs to v and lets BANBOT_* environment variables override the defaults
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}
