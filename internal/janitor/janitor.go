// Package janitor evicts conversations nobody answered and action links
// for appointments that are long past.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/aatwiz/calendar-reminder/internal/conversation"
	"github.com/aatwiz/calendar-reminder/internal/links"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

const (
	DefaultRetention = conversation.DefaultRetention
	DefaultInterval  = 24 * time.Hour
)

// SweepResult reports what one Sweep removed.
type SweepResult struct {
	Conversations int                  `json:"conversations"`
	Links         *links.CleanupResult `json:"links,omitempty"`
}

// Janitor periodically sweeps the conversation and link stores.
type Janitor struct {
	store     conversation.Store
	links     links.Store
	logger    *logging.Logger
	retention time.Duration
	interval  time.Duration
}

func New(store conversation.Store, logger *logging.Logger) *Janitor {
	if store == nil {
		panic("janitor: conversation store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Janitor{
		store:     store,
		logger:    logger,
		retention: DefaultRetention,
		interval:  DefaultInterval,
	}
}

// WithLinks also expires action links on every sweep.
func (j *Janitor) WithLinks(store links.Store) *Janitor {
	j.links = store
	return j
}

func (j *Janitor) WithRetention(d time.Duration) *Janitor {
	if d > 0 {
		j.retention = d
	}
	return j
}

func (j *Janitor) WithInterval(d time.Duration) *Janitor {
	if d > 0 {
		j.interval = d
	}
	return j
}

// Sweep removes conversations created more than the retention ago and
// links whose appointment is more than the retention in the past.
func (j *Janitor) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	n, err := j.store.EvictOlderThan(ctx, j.retention)
	if err != nil {
		return res, fmt.Errorf("janitor: evict conversations: %w", err)
	}
	res.Conversations = n

	if j.links != nil {
		cleaned, err := j.links.CleanupExpired(ctx, j.retention)
		if err != nil {
			return res, fmt.Errorf("janitor: cleanup links: %w", err)
		}
		res.Links = &cleaned
	}

	args := []any{"conversations_removed", res.Conversations, "retention", j.retention.String()}
	if res.Links != nil {
		args = append(args, "links_removed", res.Links.Removed, "links_remaining", res.Links.Remaining)
	}
	j.logger.Info("janitor sweep complete", args...)
	return res, nil
}

// Run sweeps immediately and then on every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	if _, err := j.Sweep(ctx); err != nil {
		j.logger.Error("janitor sweep failed", "error", err)
	}
}
