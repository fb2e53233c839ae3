// Package stats builds the administrator usage summary.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/khmerdict/dictbot/internal/assets"
	"github.com/khmerdict/dictbot/internal/user"
)

// ErrPermissionDenied is returned when someone other than the administrator asks for stats.
var ErrPermissionDenied = errors.New("permission denied")

// Renderer renders a named message template.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Aggregator gates the usage summary on the administrator id.
type Aggregator struct {
	users   user.Repository
	render  Renderer
	adminID int64
	timeout time.Duration
}

// NewAggregator creates an Aggregator.
func NewAggregator(users user.Repository, render Renderer, adminID int64, timeout time.Duration) *Aggregator {
	return &Aggregator{
		users:   users,
		render:  render,
		adminID: adminID,
		timeout: timeout,
	}
}

// Summary returns the raw aggregate for the administrator.
func (a *Aggregator) Summary(ctx context.Context, callerID int64) (user.Summary, error) {
	if callerID != a.adminID {
		return user.Summary{}, fmt.Errorf("stats for user %d: %w", callerID, ErrPermissionDenied)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	summary, err := a.users.Stats(ctx)
	if err != nil {
		return user.Summary{}, fmt.Errorf("users.Stats > %w", err)
	}
	return summary, nil
}

// Report renders the summary as Markdown for the administrator.
func (a *Aggregator) Report(ctx context.Context, callerID int64) (string, error) {
	summary, err := a.Summary(ctx, callerID)
	if err != nil {
		return "", err
	}
	text, err := a.render.Render(assets.TemplateStats, summary)
	if err != nil {
		return "", fmt.Errorf("render stats: %w", err)
	}
	return text, nil
}
