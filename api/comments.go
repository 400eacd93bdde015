package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-banbot/models"
)

const (
	moreChildrenBatch = 100 // reddit rejects larger morechildren requests
	commentPageLimit  = 500
)

type commentNode struct {
	id      string
	name    string
	author  string
	replies []*commentNode
}

// treeBuilder assembles a thread's comment tree from the initial listing
// plus every "more" and "continue this thread" stub reddit hands back.
type treeBuilder struct {
	threadID  string
	roots     []*commentNode
	index     map[string]*commentNode
	moreQueue []string
	continueQ []string
	requested map[string]bool
}

func newTreeBuilder(threadID string) *treeBuilder {
	return &treeBuilder{
		threadID:  threadID,
		index:     make(map[string]*commentNode),
		requested: make(map[string]bool),
	}
}

// add inserts a thing below parent. A nil parent means the parent is
// looked up from the thing's parent_id, falling back to the thread root.
func (b *treeBuilder) add(thing redditThing, parent *commentNode) error {
	switch thing.Kind {
	case kindComment:
		node, seen := b.index[thing.Data.Name]
		if !seen {
			node = &commentNode{
				id:     thing.Data.ID,
				name:   thing.Data.Name,
				author: thing.Data.Author,
			}
			b.index[node.name] = node
			b.attach(node, parent, thing.Data.ParentID)
		}

		replies, err := thing.Data.replyListing()
		if err != nil {
			return err
		}
		if replies == nil {
			return nil
		}
		for _, child := range replies.Data.Children {
			if err := b.add(child, node); err != nil {
				return err
			}
		}

	case kindMore:
		if len(thing.Data.Children) == 0 {
			// "continue this thread" stub; the subtree hangs off parent_id
			if id := thing.Data.ParentID; id != "" && !b.requested["continue:"+id] {
				b.requested["continue:"+id] = true
				b.continueQ = append(b.continueQ, id)
			}
			return nil
		}
		for _, id := range thing.Data.Children {
			if !b.requested[id] {
				b.requested[id] = true
				b.moreQueue = append(b.moreQueue, id)
			}
		}
	}

	return nil
}

func (b *treeBuilder) attach(node, parent *commentNode, parentID string) {
	if parent == nil && strings.HasPrefix(parentID, kindComment+"_") {
		parent = b.index[parentID]
	}
	if parent == nil {
		b.roots = append(b.roots, node)
		return
	}
	parent.replies = append(parent.replies, node)
}

func (b *treeBuilder) pending() bool {
	return len(b.moreQueue) > 0 || len(b.continueQ) > 0
}

func (b *treeBuilder) comments() []models.Comment {
	return toComments(b.roots)
}

func toComments(nodes []*commentNode) []models.Comment {
	if len(nodes) == 0 {
		return nil
	}
	comments := make([]models.Comment, 0, len(nodes))
	for _, n := range nodes {
		comments = append(comments, models.Comment{
			ID:      n.id,
			Author:  n.author,
			Replies: toComments(n.replies),
		})
	}
	return comments
}

// FetchCommentTree fetches a thread and expands its full comment tree
func (r *RedditAPI) FetchCommentTree(ctx context.Context, threadID string) ([]models.Comment, error) {
	builder := newTreeBuilder(threadID)

	listings, err := r.fetchCommentListing(ctx, threadID, "")
	if err != nil {
		return nil, err
	}
	for _, child := range listings {
		if err := builder.add(child, nil); err != nil {
			return nil, err
		}
	}

	for builder.pending() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(builder.moreQueue) > 0 {
			n := min(len(builder.moreQueue), moreChildrenBatch)
			batch := builder.moreQueue[:n]
			builder.moreQueue = builder.moreQueue[n:]

			things, err := r.fetchMoreChildren(ctx, threadID, batch)
			if err != nil {
				return nil, err
			}
			for _, thing := range things {
				if err := builder.add(thing, nil); err != nil {
					return nil, err
				}
			}
			continue
		}

		parentID := builder.continueQ[0]
		builder.continueQ = builder.continueQ[1:]

		things, err := r.fetchCommentListing(ctx, threadID, strings.TrimPrefix(parentID, kindComment+"_"))
		if err != nil {
			return nil, err
		}
		for _, thing := range things {
			if err := builder.add(thing, nil); err != nil {
				return nil, err
			}
		}
	}

	r.log.WithFields(logrus.Fields{
		"thread":        threadID,
		"comment_count": len(builder.index),
	}).Debug("Expanded comment tree")

	return builder.comments(), nil
}

// fetchCommentListing returns the top level comment things of a thread, or
// of the subtree rooted at commentID when it is set
func (r *RedditAPI) fetchCommentListing(ctx context.Context, threadID, commentID string) ([]redditThing, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprint(commentPageLimit))
	if commentID != "" {
		query.Set("comment", commentID)
	}

	// the response is [thread listing, comment listing]
	var listings []redditListing
	if err := r.get(ctx, "/comments/"+threadID, query, &listings); err != nil {
		return nil, fmt.Errorf("failed to fetch comments of thread %s: %w", threadID, err)
	}
	if len(listings) < 2 {
		return nil, fmt.Errorf("unexpected comment response for thread %s: %d listings", threadID, len(listings))
	}

	return listings[1].Data.Children, nil
}

func (r *RedditAPI) fetchMoreChildren(ctx context.Context, threadID string, ids []string) ([]redditThing, error) {
	query := url.Values{}
	query.Set("api_type", "json")
	query.Set("link_id", kindLink+"_"+threadID)
	query.Set("children", strings.Join(ids, ","))
	query.Set("limit_children", "false")

	var resp struct {
		JSON struct {
			Errors [][]any `json:"errors"`
			Data   struct {
				Things []redditThing `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := r.get(ctx, "/api/morechildren", query, &resp); err != nil {
		return nil, fmt.Errorf("failed to expand %d comments of thread %s: %w", len(ids), threadID, err)
	}
	if len(resp.JSON.Errors) > 0 {
		return nil, fmt.Errorf("morechildren for thread %s returned errors: %v", threadID, resp.JSON.Errors)
	}

	return resp.JSON.Data.Things, nil
}
