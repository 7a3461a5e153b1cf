package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"planet-cf/internal/domain/entity"
)

// RosterFeed is one desired roster entry, typically loaded from a
// subscriptions file.
type RosterFeed struct {
	URL   string
	Title string
}

// SyncRoster ensures every desired feed exists in the store, creating
// missing ones as active. It never deletes or deactivates anything:
// removing a feed stays an explicit operator action, not a side effect
// of editing a file. Returns how many feeds were created.
func (s *Service) SyncRoster(ctx context.Context, desired []RosterFeed) (int, error) {
	if len(desired) == 0 {
		return 0, nil
	}

	existing, err := s.FeedRepo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list feeds: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, feed := range existing {
		known[feed.URL] = struct{}{}
	}

	added := 0
	for _, want := range desired {
		if _, ok := known[want.URL]; ok {
			continue
		}
		feed := &entity.Feed{
			URL:      want.URL,
			Title:    want.Title,
			IsActive: true,
		}
		if err := s.FeedRepo.Create(ctx, feed); err != nil {
			return added, fmt.Errorf("create feed %s: %w", want.URL, err)
		}
		known[want.URL] = struct{}{}
		added++
		slog.Info("feed added from roster",
			slog.String("url", want.URL),
			slog.String("title", want.Title))
	}
	return added, nil
}
