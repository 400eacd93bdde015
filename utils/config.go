package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ErrMissingSubreddit is returned when no target subreddit is configured
var ErrMissingSubreddit = errors.New("no subreddit configured")

// viper keys, shared with the command line flags
const (
	KeySubreddit           = "subreddit"
	KeyBadSubs             = "bad-subs"
	KeyThreadSort          = "thread-sort"
	KeyThreadLimit         = "thread-limit"
	KeyUserCommentSort     = "user-comment-sort"
	KeyOverviewLimit       = "overview-limit"
	KeyBadKarma            = "bad-karma"
	KeyBanDuration         = "ban-duration"
	KeyRemoveComments      = "remove-comments"
	KeyRemoveCaseSensitive = "remove-case-sensitive"
	KeySave                = "save"
	KeyDryRun              = "dry-run"
	KeyBreakdown           = "breakdown"
	KeySeedBanned          = "seed-banned"
	KeyExcludeUsers        = "exclude-users"
	KeySavedDir            = "saved-dir"
	KeyDBPath              = "db-path"
	KeyRequestDelay        = "request-delay"
)

var (
	threadWindows = []string{"hour", "day", "week", "month", "year", "all"}
	commentSorts  = []string{"new", "hot", "top", "controversial"}
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	Reddit   RedditConfig
	Bot      BotConfig
	Storage  StorageConfig
	Database DatabaseConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name    string
	Version string
}

// RedditConfig holds Reddit API configuration
type RedditConfig struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	RequestDelay time.Duration
}

// BotConfig holds the ban pipeline options
type BotConfig struct {
	Subreddit           string
	BadSubreddits       []string
	ThreadWindow        string
	ThreadLimit         int
	UserCommentSort     string
	OverviewLimit       int
	BadKarmaThreshold   int
	BanDurationDays     int // 0 is permanent
	RemoveComments      bool
	RemoveCaseSensitive bool
	DryRun              bool
	Breakdown           bool
	SeedBanned          bool
	ExcludeUsers        []string
}

// StorageConfig holds the exclusion store location
type StorageConfig struct {
	Dir     string
	Persist bool
}

// DatabaseConfig holds the moderation log location; empty disables it
type DatabaseConfig struct {
	Path string
}

// LoadConfig loads credentials from the .env file and environment and the
// pipeline options from v, which has the command line flags bound
func LoadConfig(envPath string, v *viper.Viper, log *logrus.Logger) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}

	if err := godotenv.Load(envPath); err != nil {
		log.WithField("file", envPath).Warn("No .env file loaded, using environment only")
	}

	config := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "Reddit Banbot"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		Reddit: RedditConfig{
			ClientID:     getEnv("REDDIT_CLIENT_ID", ""),
			ClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
			Username:     getEnv("REDDIT_USERNAME", ""),
			Password:     getEnv("REDDIT_PASSWORD", ""),
			UserAgent:    getEnv("REDDIT_USER_AGENT", ""),
			RequestDelay: v.GetDuration(KeyRequestDelay),
		},
		Bot: BotConfig{
			Subreddit:           strings.TrimSpace(v.GetString(KeySubreddit)),
			BadSubreddits:       parseList(v.GetStringSlice(KeyBadSubs)),
			ThreadWindow:        strings.ToLower(v.GetString(KeyThreadSort)),
			ThreadLimit:         v.GetInt(KeyThreadLimit),
			UserCommentSort:     strings.ToLower(v.GetString(KeyUserCommentSort)),
			OverviewLimit:       v.GetInt(KeyOverviewLimit),
			BadKarmaThreshold:   v.GetInt(KeyBadKarma),
			BanDurationDays:     v.GetInt(KeyBanDuration),
			RemoveComments:      v.GetBool(KeyRemoveComments),
			RemoveCaseSensitive: v.GetBool(KeyRemoveCaseSensitive),
			DryRun:              v.GetBool(KeyDryRun),
			Breakdown:           v.GetBool(KeyBreakdown),
			SeedBanned:          v.GetBool(KeySeedBanned),
			ExcludeUsers:        parseList(v.GetStringSlice(KeyExcludeUsers)),
		},
		Storage: StorageConfig{
			Dir:     v.GetString(KeySavedDir),
			Persist: v.GetBool(KeySave),
		},
		Database: DatabaseConfig{
			Path: v.GetString(KeyDBPath),
		},
	}

	// a missing subreddit is not a misconfiguration; the caller prints usage
	if config.Bot.Subreddit == "" {
		return nil, ErrMissingSubreddit
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	log.WithField("file", envPath).Info("Config loaded successfully")
	return config, nil
}

// parseList splits comma separated entries, trims them and drops empties.
// Viper hands env values over as a single element, flags as several.
func parseList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Reddit.ClientID == "" {
		return fmt.Errorf("REDDIT_CLIENT_ID environment variable is required")
	}
	if config.Reddit.ClientSecret == "" {
		return fmt.Errorf("REDDIT_CLIENT_SECRET environment variable is required")
	}

	// User-Agent required per API documentation;  it has strict requirements.  see example.env
	if config.Reddit.UserAgent == "" {
		return fmt.Errorf("REDDIT_USER_AGENT environment variable is required")
	}

	// bans need a moderator account; a dry run can get by with app-only auth
	if !config.Bot.DryRun && (config.Reddit.Username == "" || config.Reddit.Password == "") {
		return fmt.Errorf("REDDIT_USERNAME and REDDIT_PASSWORD are required unless --%s is set", KeyDryRun)
	}

	if len(config.Bot.BadSubreddits) == 0 {
		return fmt.Errorf("--%s must list at least one subreddit", KeyBadSubs)
	}
	if !slices.Contains(threadWindows, config.Bot.ThreadWindow) {
		return fmt.Errorf("--%s must be one of %v, got %q", KeyThreadSort, threadWindows, config.Bot.ThreadWindow)
	}
	if !slices.Contains(commentSorts, config.Bot.UserCommentSort) {
		return fmt.Errorf("--%s must be one of %v, got %q", KeyUserCommentSort, commentSorts, config.Bot.UserCommentSort)
	}
	if config.Bot.ThreadLimit < 1 || config.Bot.ThreadLimit > 100 {
		return fmt.Errorf("--%s must be between 1 and 100", KeyThreadLimit)
	}
	if config.Bot.OverviewLimit < 1 || config.Bot.OverviewLimit > 100 {
		return fmt.Errorf("--%s must be between 1 and 100", KeyOverviewLimit)
	}
	if config.Bot.BanDurationDays < 0 || config.Bot.BanDurationDays > 999 {
		return fmt.Errorf("--%s must be between 0 (permanent) and 999 days", KeyBanDuration)
	}
	if config.Reddit.RequestDelay < 0 {
		return fmt.Errorf("--%s must not be negative", KeyRequestDelay)
	}

	if config.Storage.Persist {
		if config.Storage.Dir == "" {
			return fmt.Errorf("--%s is required when --%s is set", KeySavedDir, KeySave)
		}
		if err := os.MkdirAll(config.Storage.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create saved directory: %w", err)
		}
	}

	// if we are storing the db in a nested directory, create the directory
	if config.Database.Path != "" {
		dbDir := filepath.Dir(config.Database.Path)
		if dbDir != "." && dbDir != "" {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	return nil
}
