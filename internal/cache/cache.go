// Package cache keeps a day's lessons in Redis in front of the store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kitehostel/internal/events"
	"kitehostel/internal/metrics"
	"kitehostel/internal/model"
	"kitehostel/internal/schedule"
	"kitehostel/internal/timecalc"
)

const keyPrefix = "whiteboard:"

// Source is the uncached lesson source.
type Source interface {
	LessonsForDate(ctx context.Context, date time.Time) ([]model.Lesson, error)
	BookingClassesForDate(ctx context.Context, date time.Time) ([]schedule.BookingClass, error)
}

// CachedSource serves day reads from Redis and falls back to the wrapped
// source on a miss. Redis failures degrade to uncached reads.
type CachedSource struct {
	next   Source
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedSource(next Source, client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *CachedSource {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &CachedSource{
		next:   next,
		redis:  client,
		ttl:    ttl,
		logger: l.With().Str("component", "cache").Logger(),
	}
}

func (c *CachedSource) LessonsForDate(ctx context.Context, date time.Time) ([]model.Lesson, error) {
	key := lessonsKey(date)
	var lessons []model.Lesson
	if c.readCache(ctx, key, &lessons) {
		return lessons, nil
	}

	lessons, err := c.next.LessonsForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, key, lessons)
	return lessons, nil
}

func (c *CachedSource) BookingClassesForDate(ctx context.Context, date time.Time) ([]schedule.BookingClass, error) {
	key := classesKey(date)
	var classes []schedule.BookingClass
	if c.readCache(ctx, key, &classes) {
		return classes, nil
	}

	classes, err := c.next.BookingClassesForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, key, classes)
	return classes, nil
}

// Invalidate drops the cached reads of the given dates.
func (c *CachedSource) Invalidate(ctx context.Context, dates ...time.Time) error {
	if c.redis == nil || len(dates) == 0 {
		return nil
	}
	keys := make([]string, 0, 2*len(dates))
	for _, d := range dates {
		keys = append(keys, lessonsKey(d), classesKey(d))
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}

// Subscribe invalidates the affected dates whenever an event update is published.
func (c *CachedSource) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeEventUpdated, func(e events.Event) error {
		p, err := events.DecodeEventUpdated(e)
		if err != nil {
			return err
		}
		var dates []time.Time
		if d, err := timecalc.ParseDate(p.Date); err == nil {
			dates = append(dates, d)
		}
		if p.Start != nil {
			dates = append(dates, *p.Start)
		}
		return c.Invalidate(context.Background(), dates...)
	})
}

func (c *CachedSource) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.ttl <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		metrics.IncCacheLookup("miss")
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		metrics.IncCacheLookup("miss")
		return false
	}
	metrics.IncCacheLookup("hit")
	return true
}

func (c *CachedSource) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func lessonsKey(date time.Time) string {
	return keyPrefix + "lessons:" + timecalc.FormatDate(date)
}

func classesKey(date time.Time) string {
	return keyPrefix + "classes:" + timecalc.FormatDate(date)
}
