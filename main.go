package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brettboylen/reddit-banbot/api"
	"github.com/brettboylen/reddit-banbot/banbot"
	"github.com/brettboylen/reddit-banbot/db"
	"github.com/brettboylen/reddit-banbot/store"
	"github.com/brettboylen/reddit-banbot/utils"
)

const (
	flagEnv      = "env"
	flagLogLevel = "log-level"

	missingSubredditMessage = "A --subreddit to moderate is required, along with at least one --bad-subs entry."
)

func main() {
	cobra.CheckErr(newRootCommand().Execute())
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	command := &cobra.Command{
		Use:   "banbot",
		Short: "Ban users with too much karma in a list of bad subreddits",
		Long: "banbot scans the top threads of a subreddit, scores every commenter by the karma\n" +
			"they earned in the bad subreddits and bans those at or above the threshold.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v)
		},
	}

	command.Flags().String(flagEnv, ".env", "Path to .env file")
	command.Flags().String(flagLogLevel, "info", "Logging level (debug, info, warn, error)")
	utils.RegisterFlags(command.Flags())
	cobra.CheckErr(utils.BindFlags(v, command.Flags()))

	return command
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	log := setupLogger(v.GetString(flagLogLevel))

	config, err := utils.LoadConfig(v.GetString(flagEnv), v, log)
	if errors.Is(err, utils.ErrMissingSubreddit) {
		fmt.Fprintln(cmd.OutOrStdout(), missingSubredditMessage)
		return cmd.Usage()
	}
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"subreddit":      config.Bot.Subreddit,
		"bad_subreddits": config.Bot.BadSubreddits,
		"thread_sort":    config.Bot.ThreadWindow,
		"bad_karma":      config.Bot.BadKarmaThreshold,
		"ban_duration":   config.Bot.BanDurationDays,
		"save":           config.Storage.Persist,
		"dry_run":        config.Bot.DryRun,
	}).Info("Configuration loaded")

	exclusions, err := store.Open(config.Storage.Dir, config.Storage.Persist, config.Bot.ExcludeUsers, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open exclusion store")
	}

	var recorder banbot.ActionRecorder
	var database *db.Database
	if config.Database.Path != "" {
		database, err = db.NewDatabase(config.Database.Path, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to open moderation log")
		}
		defer database.Close()
		recorder = database
	}

	redditAPI := api.NewRedditAPI(api.Credentials{
		ClientID:     config.Reddit.ClientID,
		ClientSecret: config.Reddit.ClientSecret,
		Username:     config.Reddit.Username,
		Password:     config.Reddit.Password,
		UserAgent:    config.Reddit.UserAgent,
	}, config.Reddit.RequestDelay, log)

	bot := banbot.NewBot(redditAPI, exclusions, recorder, settingsFromConfig(config), log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go waitForShutdown(ctx, cancel, log)

	start := time.Now()
	result, err := bot.Run(ctx)
	if err != nil {
		log.WithError(err).Warn("Ban run interrupted")
	}

	logSummary(log, result, database, time.Since(start))
	return nil
}

func settingsFromConfig(config *utils.Config) banbot.Settings {
	return banbot.Settings{
		Subreddit:           config.Bot.Subreddit,
		BadSubreddits:       config.Bot.BadSubreddits,
		ThreadWindow:        config.Bot.ThreadWindow,
		ThreadLimit:         config.Bot.ThreadLimit,
		UserCommentSort:     config.Bot.UserCommentSort,
		OverviewLimit:       config.Bot.OverviewLimit,
		BadKarmaThreshold:   config.Bot.BadKarmaThreshold,
		BanDurationDays:     config.Bot.BanDurationDays,
		RemoveComments:      config.Bot.RemoveComments,
		RemoveCaseSensitive: config.Bot.RemoveCaseSensitive,
		DryRun:              config.Bot.DryRun,
		Breakdown:           config.Bot.Breakdown,
		SeedBanned:          config.Bot.SeedBanned,
	}
}

func logSummary(log *logrus.Logger, result *banbot.RunResult, database *db.Database, elapsed time.Duration) {
	if result == nil {
		return
	}

	fields := logrus.Fields{
		"run_id":       result.RunID,
		"threads":      len(result.Threads),
		"participants": len(result.Participants),
		"reported":     len(result.Reports),
		"elapsed":      elapsed.Round(time.Second).String(),
	}

	if database != nil {
		counts, err := database.CountActionsByStatus(result.RunID)
		if err != nil {
			log.WithError(err).Warn("Failed to read moderation log summary")
		}
		for key, count := range counts {
			fields[key] = count
		}
	}

	log.WithFields(fields).Info("Ban run finished")
}

// setupLogger sets up the logger with the specified log level
func setupLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// waitForShutdown cancels the run on SIGINT or SIGTERM
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, log *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("Shutdown signal received")
		cancel()
	case <-ctx.Done():
	}
}
