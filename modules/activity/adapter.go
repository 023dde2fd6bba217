package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/task-tracker/errs"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ActivityPort reads the activity feed.
type ActivityPort interface {
	Recent(ctx context.Context, userID string) ([]Entry, error)
}

var _ ActivityPort = (*ActivityAdapter)(nil)

// ActivityAdapter implements ActivityPort using the service container.
type ActivityAdapter struct {
	container mono.ServiceContainer
}

// NewActivityAdapter creates a new ActivityAdapter.
func NewActivityAdapter(container mono.ServiceContainer) *ActivityAdapter {
	return &ActivityAdapter{container: container}
}

// Recent returns the user's feed entries, newest first.
func (a *ActivityAdapter) Recent(ctx context.Context, userID string) ([]Entry, error) {
	req := RecentRequest{UserID: userID}
	var resp RecentResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"recent-activity",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, errs.Internal(fmt.Errorf("recent-activity request failed: %w", err))
	}
	if resp.Entries == nil {
		resp.Entries = []Entry{}
	}
	return resp.Entries, nil
}
