package internal

import (
	"time"
)

// GeoUnavailable is the placeholder used when geolocation data cannot be
// resolved; the output shape stays stable, only the values degrade.
const GeoUnavailable = "N/A"

// DefaultTopic groups URLs that were registered without an explicit topic.
const DefaultTopic = "general"

type User struct {
	Subject   string    `bson:"subject" json:"subject"`
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// GeoData is the geolocation summary attached to every click event.
type GeoData struct {
	City    string `bson:"city" json:"city"`
	Region  string `bson:"region" json:"region"`
	Country string `bson:"country" json:"country"`
	ISP     string `bson:"isp" json:"isp"`
}

func UnavailableGeo() GeoData {
	return GeoData{
		City:    GeoUnavailable,
		Region:  GeoUnavailable,
		Country: GeoUnavailable,
		ISP:     GeoUnavailable,
	}
}

// ClickEvent is immutable once appended to a URLRecord's click log.
// Battery fields are pointers: non-browser clients omit them entirely.
type ClickEvent struct {
	Timestamp         time.Time `bson:"timestamp" json:"timestamp"`
	IP                string    `bson:"ip" json:"ip"`
	Device            string    `bson:"device" json:"device"`
	OS                string    `bson:"os" json:"os"`
	Browser           string    `bson:"browser" json:"browser"`
	BatteryPercentage *int      `bson:"batteryPercentage,omitempty" json:"batteryPercentage,omitempty"`
	IsCharging        *bool     `bson:"isCharging,omitempty" json:"isCharging,omitempty"`
	Geo               GeoData   `bson:"geoData" json:"geoData"`
}

// URLRecord maps an alias to its long URL for one owning user. The pair
// (userId, alias) is unique; the alias alone is not, so two users may
// register the same alias (resolution picks the most recently created).
// ClickAnalytics is append-only; no other field is ever updated in place.
type URLRecord struct {
	UserID         string       `bson:"userId" json:"userId"`
	Alias          string       `bson:"alias" json:"alias"`
	LongURL        string       `bson:"longUrl" json:"longUrl"`
	ShortURL       string       `bson:"shortUrl" json:"shortUrl"`
	Topic          string       `bson:"topic" json:"topic"`
	ClickAnalytics []ClickEvent `bson:"clickAnalytics" json:"clickAnalytics"`
	CreatedAt      time.Time    `bson:"createdAt" json:"createdAt"`
}
