// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/flexcard"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// Infrastructure the command handlers depend on besides repositories.
// ══════════════════════════════════════════════════════════════════════════════

// Feature flag names checked by the command handlers.
const (
	FeatureNightsOutMilestones = "milestones.nights_out"
	FeatureFlexCardExport      = "flexcard.export"
)

// FlagChecker decides whether an optional feature is on for a user.
type FlagChecker interface {
	IsEnabledForUser(feature string, userID string) bool
}

// allFlagsOn is used when no checker is wired.
type allFlagsOn struct{}

func (allFlagsOn) IsEnabledForUser(string, string) bool { return true }

// Locker is a distributed mutual-exclusion lock.
type Locker interface {
	// Acquire takes key for ttl. acquired is false if someone else holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// CardExporter publishes a snapshot of a public flex card to object storage.
type CardExporter interface {
	ExportCard(ctx context.Context, card flexcard.PublicView) (url string, err error)
}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}
