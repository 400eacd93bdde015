package banbot

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/brettboylen/reddit-banbot/models"
)

func TestAggregate(t *testing.T) {
	badSet := NewBadSet([]string{"a", "B"})

	tests := []struct {
		name     string
		items    []models.ActivityItem
		expected int
	}{
		{
			name:     "Only bad subreddits count",
			items:    []models.ActivityItem{item("a", 5), item("c", 100), item("b", 3)},
			expected: 8,
		},
		{
			name:     "Case insensitive match",
			items:    []models.ActivityItem{item("A", 2), item("b", 2)},
			expected: 4,
		},
		{
			name:     "Negative scores elsewhere are ignored",
			items:    []models.ActivityItem{item("a", 4), item("c", -50)},
			expected: 4,
		},
		{
			name:     "Negative scores in bad subreddits lower the total",
			items:    []models.ActivityItem{item("a", 4), item("b", -6)},
			expected: -2,
		},
		{
			name:     "No activity",
			items:    nil,
			expected: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			total, breakdown := Aggregate(tc.items, badSet, []string{"a", "B"}, false)
			assert.Equal(t, tc.expected, total)
			assert.Nil(t, breakdown)

			total, breakdown = Aggregate(tc.items, badSet, []string{"a", "B"}, true)
			assert.Equal(t, tc.expected, total)

			sum := 0
			for _, k := range breakdown {
				sum += k.BadKarma
			}
			assert.Equal(t, total, sum)
		})
	}
}

func TestQualifies(t *testing.T) {
	assert.True(t, Qualifies(8, 8))
	assert.False(t, Qualifies(7, 8))
	assert.True(t, Qualifies(9, 8))
	assert.True(t, Qualifies(0, 0))
}

func TestBanMessage(t *testing.T) {
	s := testSettings()

	assert.Equal(t,
		"You have been banned from /r/golang for 30 days for having 12 bad karma out of our limit of 8 in these subreddits: a, b",
		BanMessage(s, 12))

	s.BanDurationDays = 0
	assert.Equal(t,
		"You have been banned from /r/golang permanently for having 12 bad karma out of our limit of 8 in these subreddits: a, b",
		BanMessage(s, 12))

	s.BanDurationDays = 1
	assert.Contains(t, BanMessage(s, 12), "for 1 day for having")
}

func TestBuildBanRequestTruncatesReason(t *testing.T) {
	s := testSettings()
	s.BanDurationDays = 0
	s.BadSubreddits = nil
	for i := 0; i < 100; i++ {
		s.BadSubreddits = append(s.BadSubreddits, "subreddit_ü")
	}

	ban := BuildBanRequest(s, models.UserReport{User: "x", TotalBadKarma: 99})

	assert.Equal(t, "x", ban.Username)
	assert.Equal(t, 0, ban.DurationDays)
	assert.Equal(t, maxReasonLength, utf8.RuneCountInString(ban.Reason))
	assert.Equal(t, maxReasonLength, utf8.RuneCountInString(ban.Note))
	assert.True(t, utf8.ValidString(ban.Reason))
	assert.True(t, strings.HasPrefix(ban.Reason, "99/8 bad karma in subreddit_ü"))
	assert.Greater(t, len(ban.Message), maxReasonLength)
}
