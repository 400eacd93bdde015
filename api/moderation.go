package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-banbot/models"
)

// apiResponse is the envelope reddit wraps api_type=json responses in
type apiResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
	} `json:"json"`
}

// FetchBannedUsers fetches every account currently banned from the subreddit
func (r *RedditAPI) FetchBannedUsers(ctx context.Context, subreddit string) ([]string, error) {
	var users []string
	after := ""

	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(defaultLimit))
		if after != "" {
			query.Set("after", after)
		}

		// banned entries are relationship objects, not things
		var listing struct {
			Data struct {
				After    string `json:"after"`
				Children []struct {
					Name string `json:"name"`
				} `json:"children"`
			} `json:"data"`
		}
		if err := r.get(ctx, fmt.Sprintf("/r/%s/about/banned", subreddit), query, &listing); err != nil {
			return nil, fmt.Errorf("failed to fetch banned users of r/%s: %w", subreddit, err)
		}

		for _, child := range listing.Data.Children {
			users = append(users, child.Name)
		}

		if listing.Data.After == "" || listing.Data.After == after {
			break
		}
		after = listing.Data.After
	}

	r.log.WithFields(logrus.Fields{
		"subreddit":    subreddit,
		"banned_count": len(users),
	}).Info("Fetched banned users")

	return users, nil
}

// BanUser bans an account from the subreddit
func (r *RedditAPI) BanUser(ctx context.Context, subreddit string, ban models.BanRequest) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("type", "banned")
	form.Set("name", ban.Username)
	form.Set("ban_message", ban.Message)
	form.Set("ban_reason", ban.Reason)
	form.Set("note", ban.Note)
	if ban.DurationDays > 0 {
		form.Set("duration", strconv.Itoa(ban.DurationDays))
	}

	var resp apiResponse
	if err := r.post(ctx, fmt.Sprintf("/r/%s/api/friend", subreddit), form, &resp); err != nil {
		return fmt.Errorf("failed to ban u/%s from r/%s: %w", ban.Username, subreddit, err)
	}
	if len(resp.JSON.Errors) > 0 {
		return fmt.Errorf("reddit rejected ban of u/%s from r/%s: %v", ban.Username, subreddit, resp.JSON.Errors)
	}

	return nil
}

// RemoveItem removes a comment or submission by fullname, ie t1_abc123
func (r *RedditAPI) RemoveItem(ctx context.Context, fullname string) error {
	form := url.Values{}
	form.Set("id", fullname)
	form.Set("spam", "false")

	if err := r.post(ctx, "/api/remove", form, nil); err != nil {
		return fmt.Errorf("failed to remove %s: %w", fullname, err)
	}

	return nil
}
