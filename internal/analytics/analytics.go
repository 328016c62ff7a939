// Package analytics folds click logs into summarized views and fronts the
// overall and topic views with a 10-minute cache. The single-alias view is
// always computed live and, unlike redirect resolution, is user-scoped.
package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/linklytics/linklytics/internal"
	"github.com/linklytics/linklytics/internal/cache"
)

// IPSummary is one (ip, device) bucket. The constant attributes are a
// snapshot of the first event seen for the bucket; later events with a
// different OS or browser are collapsed into it on purpose.
type IPSummary struct {
	IP                string           `json:"ip"`
	Device            string           `json:"device"`
	OS                string           `json:"os"`
	Browser           string           `json:"browser"`
	BatteryPercentage *int             `json:"batteryPercentage,omitempty"`
	IsCharging        *bool            `json:"isCharging,omitempty"`
	Geo               internal.GeoData `json:"geoData"`
	Clicks            int              `json:"clicks"`
}

// URLSummary is the per-URL row of the overall view.
type URLSummary struct {
	Alias     string      `json:"alias"`
	ShortURL  string      `json:"shortUrl"`
	LongURL   string      `json:"longUrl"`
	Topic     string      `json:"topic"`
	Clicks    int         `json:"clicks"`
	IPSummary []IPSummary `json:"ipSummary"`
}

// TopicURLSummary is the per-URL row of the topic view.
type TopicURLSummary struct {
	Alias       string      `json:"alias"`
	ShortURL    string      `json:"shortUrl"`
	LongURL     string      `json:"longUrl"`
	TotalClicks int         `json:"totalClicks"`
	IPSummary   []IPSummary `json:"ipSummary"`
}

type OverallReport struct {
	TotalURLs   int          `json:"totalUrls"`
	TotalClicks int          `json:"totalClicks"`
	URLs        []URLSummary `json:"urls"`
}

type TopicReport struct {
	Topic string            `json:"topic"`
	URLs  []TopicURLSummary `json:"urls"`
}

type AliasReport struct {
	Alias       string      `json:"alias"`
	LongURL     string      `json:"longUrl"`
	TotalClicks int         `json:"totalClicks"`
	IPSummary   []IPSummary `json:"ipSummary"`
}

// Store is the read-only slice of the document store the aggregator needs.
type Store interface {
	FindByUser(ctx context.Context, userID string) ([]internal.URLRecord, error)
	FindByUserAndTopic(ctx context.Context, userID, topic string) ([]internal.URLRecord, error)
	FindByUserAndAlias(ctx context.Context, userID, alias string) (*internal.URLRecord, error)
}

type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, val string, ttl time.Duration)
}

type Aggregator struct {
	store Store
	cache Cache
}

func New(store Store, c Cache) *Aggregator {
	return &Aggregator{store: store, cache: c}
}

// Overall aggregates every URL the user owns. Cache hits are returned
// verbatim; the aggregation is skipped entirely.
func (a *Aggregator) Overall(ctx context.Context, userID string) (*OverallReport, error) {
	key := cache.OverallKey(userID)
	if rep, ok := fromCache[OverallReport](ctx, a.cache, key); ok {
		return rep, nil
	}

	urls, err := a.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	rep := &OverallReport{
		TotalURLs: len(urls),
		URLs:      make([]URLSummary, 0, len(urls)),
	}
	for _, u := range urls {
		rep.TotalClicks += len(u.ClickAnalytics)
		rep.URLs = append(rep.URLs, URLSummary{
			Alias:     u.Alias,
			ShortURL:  u.ShortURL,
			LongURL:   u.LongURL,
			Topic:     u.Topic,
			Clicks:    len(u.ClickAnalytics),
			IPSummary: SummarizeClicks(u.ClickAnalytics),
		})
	}

	a.toCache(ctx, key, rep)
	return rep, nil
}

// Topic aggregates the user's URLs filtered by topic, cache-fronted per
// (user, topic) so views never leak across tenants or topics.
func (a *Aggregator) Topic(ctx context.Context, userID, topic string) (*TopicReport, error) {
	key := cache.TopicKey(userID, topic)
	if rep, ok := fromCache[TopicReport](ctx, a.cache, key); ok {
		return rep, nil
	}

	urls, err := a.store.FindByUserAndTopic(ctx, userID, topic)
	if err != nil {
		return nil, err
	}

	rep := &TopicReport{
		Topic: topic,
		URLs:  make([]TopicURLSummary, 0, len(urls)),
	}
	for _, u := range urls {
		rep.URLs = append(rep.URLs, TopicURLSummary{
			Alias:       u.Alias,
			ShortURL:    u.ShortURL,
			LongURL:     u.LongURL,
			TotalClicks: len(u.ClickAnalytics),
			IPSummary:   SummarizeClicks(u.ClickAnalytics),
		})
	}

	a.toCache(ctx, key, rep)
	return rep, nil
}

// Alias reports on exactly one alias owned by the user. Never cached: the
// click log should be as fresh as the store allows.
func (a *Aggregator) Alias(ctx context.Context, userID, alias string) (*AliasReport, error) {
	rec, err := a.store.FindByUserAndAlias(ctx, userID, alias)
	if err != nil {
		return nil, err
	}
	return &AliasReport{
		Alias:       rec.Alias,
		LongURL:     rec.LongURL,
		TotalClicks: len(rec.ClickAnalytics),
		IPSummary:   SummarizeClicks(rec.ClickAnalytics),
	}, nil
}

// SummarizeClicks groups events by (ip, device). Each bucket keeps the first
// event's attributes and counts every event; buckets are emitted in order of
// first appearance.
func SummarizeClicks(events []internal.ClickEvent) []IPSummary {
	buckets := make(map[string]*IPSummary)
	order := make([]string, 0)

	for _, ev := range events {
		key := ev.IP + "-" + ev.Device
		b, ok := buckets[key]
		if !ok {
			b = &IPSummary{
				IP:                ev.IP,
				Device:            ev.Device,
				OS:                ev.OS,
				Browser:           ev.Browser,
				BatteryPercentage: ev.BatteryPercentage,
				IsCharging:        ev.IsCharging,
				Geo:               ev.Geo,
			}
			buckets[key] = b
			order = append(order, key)
		}
		b.Clicks++
	}

	out := make([]IPSummary, 0, len(order))
	for _, key := range order {
		out = append(out, *buckets[key])
	}
	return out
}

func fromCache[T any](ctx context.Context, c Cache, key string) (*T, bool) {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var rep T
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		slog.Warn("corrupt analytics cache entry, recomputing", "key", key)
		return nil, false
	}
	return &rep, true
}

func (a *Aggregator) toCache(ctx context.Context, key string, rep any) {
	body, err := json.Marshal(rep)
	if err != nil {
		slog.Error("error marshalling analytics report for cache", "key", key, "err", err)
		return
	}
	a.cache.Set(ctx, key, string(body), cache.AnalyticsTTL)
}
