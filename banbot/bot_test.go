package banbot

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/reddit-banbot/models"
	"github.com/brettboylen/reddit-banbot/store"
)

type fakePlatform struct {
	threads      []models.Thread
	threadsErr   error
	trees        map[string][]models.Comment
	treeErrs     map[string]error
	overviews    map[string][]models.ActivityItem
	overviewErrs map[string]error
	comments     map[string][]models.ActivityItem
	banned       []string
	bannedErr    error
	banErrs      map[string]error
	removeErrs   map[string]error

	overviewCalls []string
	bans          []models.BanRequest
	removed       []string
}

func (f *fakePlatform) FetchTopThreads(ctx context.Context, subreddit, window string, limit int) ([]models.Thread, error) {
	return f.threads, f.threadsErr
}

func (f *fakePlatform) FetchCommentTree(ctx context.Context, threadID string) ([]models.Comment, error) {
	if err := f.treeErrs[threadID]; err != nil {
		return nil, err
	}
	return f.trees[threadID], nil
}

func (f *fakePlatform) FetchUserOverview(ctx context.Context, user, sort string, limit int) ([]models.ActivityItem, error) {
	f.overviewCalls = append(f.overviewCalls, user)
	if err := f.overviewErrs[user]; err != nil {
		return nil, err
	}
	return f.overviews[user], nil
}

func (f *fakePlatform) FetchUserComments(ctx context.Context, user string) ([]models.ActivityItem, error) {
	return f.comments[user], nil
}

func (f *fakePlatform) FetchBannedUsers(ctx context.Context, subreddit string) ([]string, error) {
	return f.banned, f.bannedErr
}

func (f *fakePlatform) BanUser(ctx context.Context, subreddit string, ban models.BanRequest) error {
	if err := f.banErrs[ban.Username]; err != nil {
		return err
	}
	f.bans = append(f.bans, ban)
	return nil
}

func (f *fakePlatform) RemoveItem(ctx context.Context, fullname string) error {
	if err := f.removeErrs[fullname]; err != nil {
		return err
	}
	f.removed = append(f.removed, fullname)
	return nil
}

type fakeRecorder struct {
	actions []models.ModerationAction
}

func (r *fakeRecorder) RecordAction(action *models.ModerationAction) error {
	r.actions = append(r.actions, *action)
	return nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testSettings() Settings {
	return Settings{
		Subreddit:         "golang",
		BadSubreddits:     []string{"a", "b"},
		ThreadWindow:      "week",
		ThreadLimit:       100,
		UserCommentSort:   "new",
		OverviewLimit:     100,
		BadKarmaThreshold: 8,
		BanDurationDays:   30,
	}
}

func openStore(t *testing.T, dir string) *store.ExclusionStore {
	t.Helper()
	s, err := store.Open(dir, true, []string{"AutoModerator"}, testLogger())
	require.NoError(t, err)
	return s
}

func newTestBot(t *testing.T, platform *fakePlatform, settings Settings) (*Bot, *store.ExclusionStore, *fakeRecorder) {
	t.Helper()
	s := openStore(t, t.TempDir())
	rec := &fakeRecorder{}
	return NewBot(platform, s, rec, settings, testLogger()), s, rec
}

func comment(author string, replies ...models.Comment) models.Comment {
	return models.Comment{ID: author, Author: author, Replies: replies}
}

func item(subreddit string, score int) models.ActivityItem {
	return models.ActivityItem{Subreddit: subreddit, Score: score}
}

func TestCollectThreadsSkipsProcessed(t *testing.T) {
	dir := t.TempDir()
	platform := &fakePlatform{
		threads: []models.Thread{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}},
	}

	s := openStore(t, dir)
	s.AddThread("t1")

	bot := NewBot(platform, s, nil, testSettings(), testLogger())
	assert.Equal(t, []string{"t2", "t3"}, bot.CollectThreads(context.Background()))

	// a later run loaded from disk never returns them again
	again := NewBot(platform, openStore(t, dir), nil, testSettings(), testLogger())
	assert.Empty(t, again.CollectThreads(context.Background()))
}

func TestCollectThreadsFetchError(t *testing.T) {
	platform := &fakePlatform{threadsErr: errors.New("503")}
	bot, _, _ := newTestBot(t, platform, testSettings())

	assert.Empty(t, bot.CollectThreads(context.Background()))
}

func TestAuthorsWalksNestedReplies(t *testing.T) {
	tree := []models.Comment{
		comment("alice",
			comment("bob",
				comment("carol",
					comment("dave", comment("alice")),
				),
			),
			comment("[deleted]"),
		),
		comment("erin"),
		comment(""),
	}

	assert.Equal(t, []string{"alice", "bob", "carol", "dave", "erin"}, Authors(tree))
	assert.Empty(t, Authors(nil))
}

func TestCollectParticipantsSkipsKnownUsers(t *testing.T) {
	dir := t.TempDir()
	platform := &fakePlatform{
		trees: map[string][]models.Comment{
			"t1": {comment("alice", comment("AutoModerator"), comment("bob"))},
			"t2": {comment("bob", comment("carol"))},
		},
	}

	s := openStore(t, dir)
	s.AddUser("carol")

	bot := NewBot(platform, s, nil, testSettings(), testLogger())
	assert.Equal(t, []string{"alice", "bob"}, bot.CollectParticipants(context.Background(), []string{"t1", "t2"}))

	again := NewBot(platform, openStore(t, dir), nil, testSettings(), testLogger())
	assert.Empty(t, again.CollectParticipants(context.Background(), []string{"t1", "t2"}))
}

func TestCollectParticipantsThreadFailure(t *testing.T) {
	platform := &fakePlatform{
		trees: map[string][]models.Comment{
			"t1": {comment("alice")},
			"t3": {comment("carol")},
		},
		treeErrs: map[string]error{"t2": errors.New("expand failed")},
	}
	bot, _, _ := newTestBot(t, platform, testSettings())

	participants := bot.CollectParticipants(context.Background(), []string{"t1", "t2", "t3"})
	assert.Equal(t, []string{"alice", "carol"}, participants)
}

func TestScoreUsersThresholdAndSort(t *testing.T) {
	platform := &fakePlatform{
		overviews: map[string][]models.ActivityItem{
			"x": {item("a", 5), item("c", 100), item("b", 3)},
			"y": {item("A", 20)},
			"z": {item("a", 4), item("b", 3)},
		},
	}
	bot, s, _ := newTestBot(t, platform, testSettings())

	reports := bot.ScoreUsers(context.Background(), []string{"x", "y", "z", "x"})
	require.Len(t, reports, 2)
	assert.Equal(t, "y", reports[0].User)
	assert.Equal(t, 20, reports[0].TotalBadKarma)
	assert.Equal(t, "x", reports[1].User)
	assert.Equal(t, 8, reports[1].TotalBadKarma)

	assert.Equal(t, reports, s.Reports())
	assert.Equal(t, []string{"x", "y", "z"}, platform.overviewCalls)
	assert.Equal(t, models.StateBelowThreshold, bot.states["z"])
	assert.Equal(t, models.StateReported, bot.states["x"])
}

func TestScoreUsersSkipsReportedAccounts(t *testing.T) {
	platform := &fakePlatform{
		overviews: map[string][]models.ActivityItem{
			"x": {item("a", 500)},
		},
	}
	bot, s, _ := newTestBot(t, platform, testSettings())
	s.AddReport(models.UserReport{User: "x", TotalBadKarma: 9})

	assert.Empty(t, bot.ScoreUsers(context.Background(), []string{"x"}))
	assert.Empty(t, platform.overviewCalls)

	reports := s.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, 9, reports[0].TotalBadKarma)
}

func TestScoreUsersFetchError(t *testing.T) {
	platform := &fakePlatform{
		overviews: map[string][]models.ActivityItem{
			"ok": {item("a", 50)},
		},
		overviewErrs: map[string]error{"broken": errors.New("404")},
	}
	bot, _, _ := newTestBot(t, platform, testSettings())

	reports := bot.ScoreUsers(context.Background(), []string{"broken", "ok"})
	require.Len(t, reports, 1)
	assert.Equal(t, "ok", reports[0].User)
}

func TestScoreUsersBreakdown(t *testing.T) {
	settings := testSettings()
	settings.Breakdown = true
	platform := &fakePlatform{
		overviews: map[string][]models.ActivityItem{
			"x": {item("b", 3), item("a", 5), item("c", 100), item("B", 2)},
		},
	}
	bot, _, _ := newTestBot(t, platform, settings)

	reports := bot.ScoreUsers(context.Background(), []string{"x"})
	require.Len(t, reports, 1)
	assert.Equal(t, 10, reports[0].TotalBadKarma)
	assert.Equal(t, []models.SubredditKarma{
		{Subreddit: "a", BadKarma: 5},
		{Subreddit: "b", BadKarma: 5},
	}, reports[0].BadKarma)
}

func TestExecuteDryRun(t *testing.T) {
	settings := testSettings()
	settings.DryRun = true
	settings.RemoveComments = true
	platform := &fakePlatform{
		comments: map[string][]models.ActivityItem{
			"x": {{Fullname: "t1_1", Subreddit: "golang"}},
		},
	}
	bot, _, rec := newTestBot(t, platform, settings)

	bot.Execute(context.Background(), []models.UserReport{{User: "x", TotalBadKarma: 8}})

	assert.Empty(t, platform.bans)
	assert.Empty(t, platform.removed)
	require.Len(t, rec.actions, 1)
	assert.Equal(t, models.ActionDryRun, rec.actions[0].Action)
	assert.Equal(t, models.StatusSkipped, rec.actions[0].Status)
}

func TestExecuteBansAndRemovesComments(t *testing.T) {
	tests := []struct {
		name          string
		caseSensitive bool
		expected      []string
	}{
		{name: "Case insensitive subreddit match", caseSensitive: false, expected: []string{"t1_1", "t1_2"}},
		{name: "Case sensitive subreddit match", caseSensitive: true, expected: []string{"t1_1"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			settings := testSettings()
			settings.RemoveComments = true
			settings.RemoveCaseSensitive = tc.caseSensitive
			platform := &fakePlatform{
				comments: map[string][]models.ActivityItem{
					"x": {
						{Fullname: "t1_1", Subreddit: "golang"},
						{Fullname: "t1_2", Subreddit: "GoLang"},
						{Fullname: "t1_3", Subreddit: "rust"},
					},
				},
			}
			bot, _, _ := newTestBot(t, platform, settings)

			bot.Execute(context.Background(), []models.UserReport{{User: "x", TotalBadKarma: 12}})

			require.Len(t, platform.bans, 1)
			ban := platform.bans[0]
			assert.Equal(t, "x", ban.Username)
			assert.Equal(t, 30, ban.DurationDays)
			assert.Contains(t, ban.Message, "/r/golang for 30 days")
			assert.Contains(t, ban.Message, "12 bad karma out of our limit of 8")
			assert.Equal(t, tc.expected, platform.removed)
			assert.Equal(t, models.StateBanned, bot.states["x"])
		})
	}
}

func TestExecuteContinuesAfterFailures(t *testing.T) {
	settings := testSettings()
	settings.RemoveComments = true
	platform := &fakePlatform{
		banErrs:    map[string]error{"first": errors.New("USER_DOESNT_EXIST")},
		removeErrs: map[string]error{"t1_a": errors.New("403")},
		comments: map[string][]models.ActivityItem{
			"first":  {{Fullname: "t1_z", Subreddit: "golang"}},
			"second": {{Fullname: "t1_a", Subreddit: "golang"}, {Fullname: "t1_b", Subreddit: "golang"}},
		},
	}
	bot, _, rec := newTestBot(t, platform, settings)

	bot.Execute(context.Background(), []models.UserReport{
		{User: "first", TotalBadKarma: 50},
		{User: "second", TotalBadKarma: 20},
	})

	require.Len(t, platform.bans, 1)
	assert.Equal(t, "second", platform.bans[0].Username)
	assert.Equal(t, []string{"t1_b"}, platform.removed)
	assert.Equal(t, models.StateReportFailed, bot.states["first"])
	assert.Equal(t, models.StateBanned, bot.states["second"])

	statuses := make(map[string]int)
	for _, a := range rec.actions {
		statuses[a.Action+"/"+a.Status]++
	}
	assert.Equal(t, map[string]int{
		"ban/failed":            1,
		"ban/ok":                1,
		"remove_comment/failed": 1,
		"remove_comment/ok":     1,
	}, statuses)
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	platform := &fakePlatform{
		threads: []models.Thread{{ID: "t1"}, {ID: "t2"}},
		trees: map[string][]models.Comment{
			"t1": {comment("x", comment("already", comment("y")))},
			"t2": {comment("z")},
		},
		banned: []string{"already"},
		overviews: map[string][]models.ActivityItem{
			"x":       {item("a", 5), item("c", 100), item("b", 3)},
			"y":       {item("b", 40)},
			"z":       {item("a", 7)},
			"already": {item("a", 1000)},
		},
	}

	settings := testSettings()
	settings.SeedBanned = true
	bot := NewBot(platform, openStore(t, dir), nil, settings, testLogger())

	result, err := bot.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "t2"}, result.Threads)
	assert.Equal(t, []string{"x", "already", "y", "z"}, result.Participants)
	assert.NotContains(t, platform.overviewCalls, "already")

	require.Len(t, result.Reports, 2)
	assert.Equal(t, "y", result.Reports[0].User)
	assert.Equal(t, "x", result.Reports[1].User)

	require.Len(t, platform.bans, 2)
	assert.Equal(t, "y", platform.bans[0].Username)

	for _, name := range []string{store.ThreadsFile, store.UsersFile, store.ReportFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	persisted := openStore(t, dir).Reports()
	require.Len(t, persisted, 3)
	assert.Equal(t, "y", persisted[0].User)
	assert.Equal(t, "x", persisted[1].User)
	assert.Equal(t, models.UserReport{User: "already", TotalBadKarma: models.AlreadyBannedKarma}, persisted[2])
}

func TestRunDryRunStillPersistsReport(t *testing.T) {
	dir := t.TempDir()
	platform := &fakePlatform{
		threads:   []models.Thread{{ID: "t1"}},
		trees:     map[string][]models.Comment{"t1": {comment("x")}},
		overviews: map[string][]models.ActivityItem{"x": {item("a", 8)}},
	}

	settings := testSettings()
	settings.DryRun = true
	bot := NewBot(platform, openStore(t, dir), nil, settings, testLogger())

	result, err := bot.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Reports, 1)
	assert.Empty(t, platform.bans)

	persisted := openStore(t, dir).Reports()
	require.Len(t, persisted, 1)
	assert.Equal(t, "x", persisted[0].User)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	platform := &fakePlatform{threads: []models.Thread{{ID: "t1"}}}
	bot, _, _ := newTestBot(t, platform, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bot.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
