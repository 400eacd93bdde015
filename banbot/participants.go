package banbot

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/reddit-banbot/models"
)

// CollectParticipants returns every new account that commented in the threads.
// Accounts are marked processed and the user file is flushed after each thread.
func (b *Bot) CollectParticipants(ctx context.Context, threads []string) []string {
	var participants []string

	for _, thread := range threads {
		if ctx.Err() != nil {
			break
		}

		b.log.WithField("thread", thread).Info("Fetching users from thread")

		tree, err := b.platform.FetchCommentTree(ctx, thread)
		if err != nil {
			b.log.WithError(err).WithField("thread", thread).Error("Failed to fetch thread comments")
			continue
		}

		added := 0
		for _, author := range Authors(tree) {
			if !b.store.AddUser(author) {
				continue
			}
			participants = append(participants, author)
			b.setState(author, models.StateParticipant)
			added++
		}

		b.flush("users", b.store.FlushUsers)

		b.log.WithFields(logrus.Fields{
			"thread": thread,
			"new":    added,
		}).Debug("Collected thread participants")
	}

	b.log.WithField("count", len(participants)).Info("Collected participants")
	return participants
}

// Authors walks a comment tree and returns its distinct authors in
// depth-first order. Deleted accounts are skipped.
func Authors(comments []models.Comment) []string {
	seen := make(map[string]struct{})
	var authors []string

	var walk func([]models.Comment)
	walk = func(nodes []models.Comment) {
		for _, c := range nodes {
			if c.Author != "" && c.Author != deletedAuthor {
				if _, ok := seen[c.Author]; !ok {
					seen[c.Author] = struct{}{}
					authors = append(authors, c.Author)
				}
			}
			walk(c.Replies)
		}
	}
	walk(comments)

	return authors
}
