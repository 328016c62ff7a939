package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linklytics/linklytics/internal"
	"github.com/linklytics/linklytics/internal/apperr"
	"github.com/linklytics/linklytics/internal/cache"
)

type fakeStore struct {
	urls       []internal.URLRecord
	userCalls  int
	topicCalls int
	lastTopic  string
	aliasCalls int
}

func (s *fakeStore) FindByUser(ctx context.Context, userID string) ([]internal.URLRecord, error) {
	s.userCalls++
	var out []internal.URLRecord
	for _, u := range s.urls {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *fakeStore) FindByUserAndTopic(ctx context.Context, userID, topic string) ([]internal.URLRecord, error) {
	s.topicCalls++
	s.lastTopic = topic
	var out []internal.URLRecord
	for _, u := range s.urls {
		if u.UserID == userID && u.Topic == topic {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *fakeStore) FindByUserAndAlias(ctx context.Context, userID, alias string) (*internal.URLRecord, error) {
	s.aliasCalls++
	for _, u := range s.urls {
		if u.UserID == userID && u.Alias == alias {
			return &u, nil
		}
	}
	return nil, apperr.ErrNotFound
}

type fakeCache struct {
	data map[string]string
	ttls map[string]time.Duration
	gets int
	sets int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, bool) {
	c.gets++
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) Set(ctx context.Context, key, val string, ttl time.Duration) {
	c.sets++
	c.data[key] = val
	c.ttls[key] = ttl
}

func click(ip, device, os string) internal.ClickEvent {
	return internal.ClickEvent{
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		IP:        ip,
		Device:    device,
		OS:        os,
		Browser:   "Chrome",
		Geo:       internal.UnavailableGeo(),
	}
}

func TestSummarizeClicksGroupsByIPAndDevice(t *testing.T) {
	events := []internal.ClickEvent{
		click("A", "mobile", "iOS"),
		click("A", "mobile", "Android"), // collapses into the first-seen bucket
		click("B", "desktop", "Windows 10"),
	}

	rows := SummarizeClicks(events)
	require.Len(t, rows, 2)

	assert.Equal(t, "A", rows[0].IP)
	assert.Equal(t, "mobile", rows[0].Device)
	assert.Equal(t, "iOS", rows[0].OS, "bucket keeps the first event's snapshot")
	assert.Equal(t, 2, rows[0].Clicks)

	assert.Equal(t, "B", rows[1].IP)
	assert.Equal(t, "desktop", rows[1].Device)
	assert.Equal(t, 1, rows[1].Clicks)
}

func TestSummarizeClicksTotalIsOrderInsensitive(t *testing.T) {
	events := []internal.ClickEvent{
		click("A", "mobile", "iOS"),
		click("B", "desktop", "Windows 10"),
		click("A", "mobile", "Android"),
		click("C", "tablet", "iPadOS"),
	}
	reversed := make([]internal.ClickEvent, len(events))
	for i, ev := range events {
		reversed[len(events)-1-i] = ev
	}

	total := func(rows []IPSummary) int {
		n := 0
		for _, r := range rows {
			n += r.Clicks
		}
		return n
	}

	assert.Equal(t, len(events), total(SummarizeClicks(events)))
	assert.Equal(t, len(events), total(SummarizeClicks(reversed)))
}

func TestSummarizeClicksEmptyLog(t *testing.T) {
	assert.Empty(t, SummarizeClicks(nil))
}

func TestOverallAggregation(t *testing.T) {
	st := &fakeStore{urls: []internal.URLRecord{{
		UserID:   "u1",
		Alias:    "yt",
		ShortURL: "https://sho.rt/yt",
		LongURL:  "https://example.com",
		Topic:    "tech",
		ClickAnalytics: []internal.ClickEvent{
			click("1.2.3.4", "mobile", "iOS"),
		},
	}}}
	kv := newFakeCache()
	a := New(st, kv)

	rep, err := a.Overall(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, rep.TotalURLs)
	assert.Equal(t, 1, rep.TotalClicks)
	require.Len(t, rep.URLs, 1)
	assert.Equal(t, "yt", rep.URLs[0].Alias)
	assert.Equal(t, 1, rep.URLs[0].Clicks)
	require.Len(t, rep.URLs[0].IPSummary, 1)
	assert.Equal(t, 1, rep.URLs[0].IPSummary[0].Clicks)

	// miss backfills the user-scoped key with the ten-minute TTL
	key := cache.OverallKey("u1")
	_, ok := kv.data[key]
	require.True(t, ok)
	assert.Equal(t, cache.AnalyticsTTL, kv.ttls[key])
}

func TestOverallCacheHitSkipsAggregation(t *testing.T) {
	st := &fakeStore{}
	kv := newFakeCache()
	cached := OverallReport{TotalURLs: 7, TotalClicks: 42, URLs: []URLSummary{}}
	body, err := json.Marshal(cached)
	require.NoError(t, err)
	kv.data[cache.OverallKey("u1")] = string(body)

	rep, err := New(st, kv).Overall(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, &cached, rep, "cached payload is returned verbatim")
	assert.Zero(t, st.userCalls, "cache hit must skip the store entirely")
	assert.Zero(t, kv.sets)
}

func TestOverallEmpty(t *testing.T) {
	rep, err := New(&fakeStore{}, newFakeCache()).Overall(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, rep.TotalURLs)
	assert.Zero(t, rep.TotalClicks)
	assert.Empty(t, rep.URLs)
}

func TestTopicAggregation(t *testing.T) {
	st := &fakeStore{urls: []internal.URLRecord{
		{UserID: "u1", Alias: "yt", Topic: "tech", ShortURL: "https://sho.rt/yt", LongURL: "https://a.example",
			ClickAnalytics: []internal.ClickEvent{click("A", "mobile", "iOS"), click("A", "mobile", "iOS")}},
		{UserID: "u1", Alias: "nw", Topic: "news", ShortURL: "https://sho.rt/nw", LongURL: "https://b.example"},
	}}
	kv := newFakeCache()

	rep, err := New(st, kv).Topic(context.Background(), "u1", "tech")
	require.NoError(t, err)

	assert.Equal(t, "tech", rep.Topic)
	assert.Equal(t, "tech", st.lastTopic)
	require.Len(t, rep.URLs, 1)
	assert.Equal(t, "yt", rep.URLs[0].Alias)
	assert.Equal(t, 2, rep.URLs[0].TotalClicks)

	key := cache.TopicKey("u1", "tech")
	_, ok := kv.data[key]
	require.True(t, ok)
	assert.Equal(t, cache.AnalyticsTTL, kv.ttls[key])
}

func TestAliasAnalyticsIsUserScoped(t *testing.T) {
	st := &fakeStore{urls: []internal.URLRecord{
		{UserID: "u1", Alias: "promo", LongURL: "https://a.example",
			ClickAnalytics: []internal.ClickEvent{click("A", "mobile", "iOS")}},
	}}
	kv := newFakeCache()
	a := New(st, kv)
	ctx := context.Background()

	rep, err := a.Alias(ctx, "u1", "promo")
	require.NoError(t, err)
	assert.Equal(t, "promo", rep.Alias)
	assert.Equal(t, 1, rep.TotalClicks)

	// another user does not own this alias
	_, err = a.Alias(ctx, "u2", "promo")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// the single-alias view is never cached
	assert.Zero(t, kv.gets)
	assert.Zero(t, kv.sets)
}
