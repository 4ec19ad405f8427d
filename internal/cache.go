package internal

import (
	"context"
	"time"
)

// SessionCache stores sessions per (city, day). Implementations never surface backend
// failures: reads degrade to empty and writes are dropped.
type SessionCache interface {
	Put(ctx context.Context, city City, date time.Time, sessions []Session)
	Get(ctx context.Context, city City, date time.Time) ([]Session, bool)
	GetMany(ctx context.Context, city City, dates []time.Time) []Session
	CachedDates(ctx context.Context, city City) []time.Time
	Invalidate(ctx context.Context, city City, date time.Time)
	InvalidateCity(ctx context.Context, city City)
	Size(ctx context.Context, city City) int
}
