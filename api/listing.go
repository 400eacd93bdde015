package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-banbot/models"
)

const (
	kindComment = "t1"
	kindLink    = "t3"
	kindMore    = "more"
)

// redditThing is a single child of a Reddit listing.
// Only the fields used by the bot are decoded.
type redditThing struct {
	Kind string    `json:"kind"`
	Data thingData `json:"data"`
}

type thingData struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Subreddit   string          `json:"subreddit"`
	LinkID      string          `json:"link_id"`
	ParentID    string          `json:"parent_id"`
	Permalink   string          `json:"permalink"`
	Score       int             `json:"score"`
	NumComments int             `json:"num_comments"`
	Replies     json.RawMessage `json:"replies"`

	// set on "more" stubs
	Children []string `json:"children"`
	Count    int      `json:"count"`
}

// redditListing represents the Reddit API listing structure
type redditListing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string        `json:"after"`
		Before   string        `json:"before"`
		Children []redditThing `json:"children"`
	} `json:"data"`
}

// replyListing decodes the replies field of a comment. Reddit sends an
// empty string instead of a listing when a comment has no replies.
func (d thingData) replyListing() (*redditListing, error) {
	raw := bytes.TrimSpace(d.Replies)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, nil
	}

	var listing redditListing
	if err := json.Unmarshal(raw, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode replies of %s: %w", d.Name, err)
	}
	return &listing, nil
}

func (t redditThing) toActivityItem() models.ActivityItem {
	return models.ActivityItem{
		ID:        t.Data.ID,
		Fullname:  t.Data.Name,
		Kind:      t.Kind,
		Subreddit: t.Data.Subreddit,
		LinkID:    t.Data.LinkID,
		Permalink: t.Data.Permalink,
		Author:    t.Data.Author,
		Score:     t.Data.Score,
	}
}

// FetchTopThreads fetches the top threads of a subreddit for the given time window
func (r *RedditAPI) FetchTopThreads(ctx context.Context, subreddit, window string, limit int) ([]models.Thread, error) {
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}

	query := url.Values{}
	query.Set("t", window)
	query.Set("limit", strconv.Itoa(limit))

	var listing redditListing
	if err := r.get(ctx, fmt.Sprintf("/r/%s/top", subreddit), query, &listing); err != nil {
		return nil, fmt.Errorf("failed to fetch top threads of r/%s: %w", subreddit, err)
	}

	threads := make([]models.Thread, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		if child.Kind != kindLink {
			continue
		}
		threads = append(threads, models.Thread{
			ID:          child.Data.ID,
			Fullname:    child.Data.Name,
			Title:       child.Data.Title,
			Author:      child.Data.Author,
			Subreddit:   child.Data.Subreddit,
			Score:       child.Data.Score,
			NumComments: child.Data.NumComments,
		})
	}

	r.log.WithFields(logrus.Fields{
		"subreddit":    subreddit,
		"window":       window,
		"thread_count": len(threads),
	}).Info("Fetched top threads")

	return threads, nil
}

// FetchUserOverview fetches up to limit of the user's most recent comments and submissions
func (r *RedditAPI) FetchUserOverview(ctx context.Context, user, sort string, limit int) ([]models.ActivityItem, error) {
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}

	query := url.Values{}
	query.Set("sort", sort)
	query.Set("limit", strconv.Itoa(limit))

	var listing redditListing
	if err := r.get(ctx, fmt.Sprintf("/user/%s/overview", user), query, &listing); err != nil {
		return nil, fmt.Errorf("failed to fetch overview of u/%s: %w", user, err)
	}

	items := make([]models.ActivityItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		items = append(items, child.toActivityItem())
	}

	return items, nil
}

// FetchUserComments fetches every comment of the user that Reddit still lists
func (r *RedditAPI) FetchUserComments(ctx context.Context, user string) ([]models.ActivityItem, error) {
	var items []models.ActivityItem
	after := ""

	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(defaultLimit))
		if after != "" {
			query.Set("after", after)
		}

		var listing redditListing
		if err := r.get(ctx, fmt.Sprintf("/user/%s/comments", user), query, &listing); err != nil {
			return nil, fmt.Errorf("failed to fetch comments of u/%s: %w", user, err)
		}

		for _, child := range listing.Data.Children {
			items = append(items, child.toActivityItem())
		}

		if listing.Data.After == "" || listing.Data.After == after {
			break
		}
		after = listing.Data.After
	}

	return items, nil
}
