package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/linklytics/linklytics/internal"
	"github.com/linklytics/linklytics/internal/apperr"
	"github.com/linklytics/linklytics/internal/auth"
	"github.com/linklytics/linklytics/internal/cache"
	"github.com/linklytics/linklytics/internal/enrich"
	"github.com/linklytics/linklytics/internal/resolver"
)

// beaconPage fires the click beacon before navigating so that leaving the
// page does not abort the beacon request. keepalive lets the browser finish
// the POST even after navigation starts.
const beaconPage = `<!DOCTYPE html>
<html>
<body>
<script>
  var payload = %s;
  var target = %s;
  function send(p) {
    fetch('/api/log-click', {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify(p),
      keepalive: true
    });
    window.location.href = target;
  }
  if (navigator.getBattery) {
    navigator.getBattery().then(function (battery) {
      payload.batteryPercentage = Math.floor(battery.level * 100);
      payload.isCharging = battery.charging;
      send(payload);
    }).catch(function () { send(payload); });
  } else {
    send(payload);
  }
</script>
</body>
</html>`

type beaconPayload struct {
	IP      string           `json:"ip"`
	Alias   string           `json:"alias"`
	Device  string           `json:"device"`
	OS      string           `json:"os"`
	Browser string           `json:"browser"`
	Geo     internal.GeoData `json:"geoData"`
}

func handleRedirect(cfg *Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		alias := c.Params("alias")
		ctx := c.Context()

		rec, err := cfg.Resolver.Resolve(ctx, alias)
		if err != nil {
			return respondError(c, err, "Short URL not found")
		}

		// Enrichment is on the critical path but bounded: the geolocation
		// client carries its own timeout and degrades to sentinels.
		ip := enrich.NormalizeIP(c.Get("X-Forwarded-For"), c.IP())
		info := enrich.ParseUserAgent(c.Get(fiber.HeaderUserAgent))
		geo := cfg.Geo.Lookup(ctx, ip)

		payload, err := json.Marshal(beaconPayload{
			IP:      ip,
			Alias:   alias,
			Device:  info.Device,
			OS:      info.OS,
			Browser: info.Browser,
			Geo:     geo,
		})
		if err != nil {
			slog.Error("Error marshalling beacon payload", "alias", alias, "err", err)
			return c.Redirect(rec.LongURL, fiber.StatusFound)
		}
		target, err := json.Marshal(rec.LongURL)
		if err != nil {
			return c.Redirect(rec.LongURL, fiber.StatusFound)
		}

		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(fmt.Sprintf(beaconPage, payload, target))
	}
}

func handleLogClick(cfg *Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			IP                string           `json:"ip"`
			Alias             string           `json:"alias" validate:"required"`
			Device            string           `json:"device"`
			OS                string           `json:"os"`
			Browser           string           `json:"browser"`
			BatteryPercentage *int             `json:"batteryPercentage" validate:"omitempty,min=0,max=100"`
			IsCharging        *bool            `json:"isCharging"`
			Geo               internal.GeoData `json:"geoData"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}
		if err := cfg.Validate.Struct(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		ev := internal.ClickEvent{
			Timestamp:         time.Now().UTC(),
			IP:                enrich.NormalizeIP("", req.IP),
			Device:            orUnknown(req.Device),
			OS:                orUnknown(req.OS),
			Browser:           orUnknown(req.Browser),
			BatteryPercentage: req.BatteryPercentage,
			IsCharging:        req.IsCharging,
			Geo:               sentinelGeo(req.Geo),
		}

		// Fire-and-forget: the redirect response was delivered long ago and
		// nobody is waiting on ingestion.
		cfg.Ingestor.Enqueue(req.Alias, ev)

		return c.SendString("Click logged successfully")
	}
}

func handleShorten(cfg *Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			LongURL     string `json:"longUrl" validate:"required,max=2048"`
			CustomAlias string `json:"customAlias" validate:"omitempty,min=1,max=32,alphanum"`
			Topic       string `json:"topic" validate:"omitempty,max=64"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}
		if err := cfg.Validate.Struct(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		userID := c.Locals(auth.UserIDKey).(string)
		rec, err := cfg.Resolver.Register(c.Context(), resolver.RegisterInput{
			UserID:  userID,
			LongURL: req.LongURL,
			Alias:   req.CustomAlias,
			Topic:   req.Topic,
		})
		if errors.Is(err, apperr.ErrAliasConflict) {
			alias := req.CustomAlias
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": fmt.Sprintf("Alias %q already exists for this user. Please use a different alias.", alias),
			})
		}
		if err != nil {
			return respondError(c, err, "Short URL not found")
		}

		slog.Info("Created short URL", "user_id", userID, "short_url", rec.ShortURL)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"shortUrl": rec.ShortURL})
	}
}

func handleLogin(cfg *Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Token string `json:"token" validate:"required"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}
		if err := cfg.Validate.Struct(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		ctx := c.Context()
		identity, err := cfg.Verifier.Verify(ctx, req.Token)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Identity verification failed"})
		}

		user, err := cfg.Store.FindUserBySubject(ctx, identity.Subject)
		if errors.Is(err, apperr.ErrNotFound) {
			user = &internal.User{
				Subject:   identity.Subject,
				Email:     identity.Email,
				Name:      identity.Name,
				CreatedAt: time.Now().UTC(),
			}
			if err := cfg.Store.InsertUser(ctx, user); err != nil {
				return respondError(c, err, "")
			}
		} else if err != nil {
			return respondError(c, err, "")
		}

		token, err := cfg.Tokens.Mint(user.Subject, user.Email)
		if err != nil {
			slog.Error("Error minting session token", "err", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not create session"})
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user": fiber.Map{
				"subject": user.Subject,
				"email":   user.Email,
				"name":    user.Name,
			},
		})
	}
}

func handleGetUser(cfg *Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals(auth.UserIDKey).(string)
		ctx := c.Context()

		key := cache.UserKey(userID)
		if raw, ok := cfg.Cache.Get(ctx, key); ok {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.SendString(raw)
		}

		user, err := cfg.Store.FindUserBySubject(ctx, userID)
		if err != nil {
			return respondError(c, err, "User not found")
		}

		details := fiber.Map{
			"username": user.Name,
			"email":    user.Email,
		}
		if body, err := json.Marshal(details); err == nil {
			cfg.Cache.Set(ctx, key, string(body), cache.UserTTL)
		}
		return c.JSON(details)
	}
}

func handleOverallAnalytics(cfg *Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals(auth.UserIDKey).(string)
		rep, err := cfg.Analytics.Overall(c.Context(), userID)
		if err != nil {
			return respondError(c, err, "No analytics found")
		}
		return c.JSON(rep)
	}
}

func handleTopicAnalytics(cfg *Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals(auth.UserIDKey).(string)
		rep, err := cfg.Analytics.Topic(c.Context(), userID, c.Params("topic"))
		if err != nil {
			return respondError(c, err, "No analytics found")
		}
		return c.JSON(rep)
	}
}

func handleAliasAnalytics(cfg *Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		shortURL := c.Query("shortUrl")
		if shortURL == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "shortUrl query parameter is required"})
		}
		parts := strings.Split(shortURL, "/")
		alias := parts[len(parts)-1]

		userID := c.Locals(auth.UserIDKey).(string)
		rep, err := cfg.Analytics.Alias(c.Context(), userID, alias)
		if err != nil {
			return respondError(c, err, "Shortened URL not found")
		}
		return c.JSON(rep)
	}
}

func respondError(c *fiber.Ctx, err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": notFoundMsg})
	case errors.Is(err, apperr.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	case errors.Is(err, apperr.ErrUpstream):
		slog.Error("Store error", "err", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Service temporarily unavailable"})
	default:
		slog.Error("Unexpected error", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// sentinelGeo fills missing geolocation fields so the stored event shape
// never loses fields.
func sentinelGeo(g internal.GeoData) internal.GeoData {
	if g.City == "" {
		g.City = internal.GeoUnavailable
	}
	if g.Region == "" {
		g.Region = internal.GeoUnavailable
	}
	if g.Country == "" {
		g.Country = internal.GeoUnavailable
	}
	if g.ISP == "" {
		g.ISP = internal.GeoUnavailable
	}
	return g
}
