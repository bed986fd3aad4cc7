package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/crashstack/crash-radar/internal/cache"
	"github.com/crashstack/crash-radar/internal/metrics"
	"github.com/crashstack/crash-radar/internal/models"
	"github.com/crashstack/crash-radar/internal/utils"
)

// ErrDataUnavailable signals that upstream crash data could not be fetched.
// A current-window failure is fatal to a report run; callers are expected
// to emit a distinct "could not generate report" notification rather than
// a silent empty report.
var ErrDataUnavailable = errors.New("crash data unavailable")

// crashLevelQuery restricts issue searches to crash-grade events.
// warning/info issues are never classified as crashes.
const crashLevelQuery = "level:[error,fatal]"

// SentryConfig configures access to the Sentry REST API.
type SentryConfig struct {
	BaseURL   string
	Token     string
	Org       string
	ProjectID int
	PerPage   int
	MaxPages  int
	Timeout   time.Duration
}

// SentryClient fetches issue windows and session metrics from Sentry.
type SentryClient struct {
	cfg        SentryConfig
	httpClient *http.Client
	logger     *slog.Logger

	cache     cache.Provider
	windowTTL time.Duration
	now       func() time.Time
}

// NewSentryClient constructs a client for the configured organization and
// project. cacheProvider may be nil; closed-window results are then never
// cached.
func NewSentryClient(cfg SentryConfig, logger *slog.Logger, cacheProvider cache.Provider, windowTTL time.Duration) *SentryClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sentry.io/api/0"
	}
	if cfg.PerPage <= 0 || cfg.PerPage > 100 {
		cfg.PerPage = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SentryClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		cache:      cacheProvider,
		windowTTL:  windowTTL,
		now:        time.Now,
	}
}

// FetchIssueWindow returns every issue with at least one error/fatal event
// in [window.Start, window.End), following cursor pagination up to the
// configured page bound. Results for already-closed windows are cached:
// a closed period's counts never change upstream.
func (c *SentryClient) FetchIssueWindow(ctx context.Context, window models.TimeRange, filter models.WindowFilter) ([]models.IssueSnapshot, error) {
	if c.cfg.Org == "" {
		return nil, fmt.Errorf("%w: organization not configured", ErrDataUnavailable)
	}

	key := windowCacheKey(window, filter)
	closed := window.End.Before(c.now())
	if closed && c.cache != nil {
		if data, err := c.cache.Get(ctx, key); err == nil {
			var cached []models.IssueSnapshot
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
			_ = c.cache.Del(ctx, key)
		}
	}

	query := crashLevelQuery
	if filter.Release != "" {
		query += " release:" + filter.Release
	}

	params := url.Values{}
	params.Set("project", strconv.Itoa(c.cfg.ProjectID))
	params.Set("query", query)
	params.Set("start", window.Start.UTC().Format(time.RFC3339))
	params.Set("end", window.End.UTC().Format(time.RFC3339))
	params.Set("sort", "freq")
	params.Set("per_page", strconv.Itoa(c.cfg.PerPage))
	if filter.Environment != "" {
		params.Set("environment", filter.Environment)
	}

	endpoint := c.resolvePath(fmt.Sprintf("/organizations/%s/issues/", c.cfg.Org))

	var snapshots []models.IssueSnapshot
	cursor := ""
	for page := 0; page < c.cfg.MaxPages; page++ {
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var items []issuePayload
		header, err := c.getJSON(ctx, endpoint, params, &items)
		if err != nil {
			return nil, fmt.Errorf("%w: issues request: %v", ErrDataUnavailable, err)
		}

		for _, item := range items {
			snap, ok := item.toSnapshot(c.cfg.Org)
			if !ok {
				continue
			}
			snapshots = append(snapshots, snap)
		}

		cursor = parseNextCursor(header.Get("Link"))
		if cursor == "" {
			break
		}
	}

	if closed && c.cache != nil && len(snapshots) > 0 {
		if data, err := json.Marshal(snapshots); err == nil {
			if err := c.cache.Set(ctx, key, data, c.windowTTL); err != nil {
				c.logger.Debug("window cache write failed", slog.Any("error", err))
			}
		}
	}

	return snapshots, nil
}

// FetchCrashFreeRate queries the sessions API for crash-free percentages
// over the window. Missing series yield nil fields, not an error.
func (c *SentryClient) FetchCrashFreeRate(ctx context.Context, window models.TimeRange, filter models.WindowFilter) (models.CrashFreeRate, error) {
	params := url.Values{}
	params.Set("project", strconv.Itoa(c.cfg.ProjectID))
	params.Set("start", window.Start.UTC().Format(time.RFC3339))
	params.Set("end", window.End.UTC().Format(time.RFC3339))
	params.Add("field", "crash_free_rate(session)")
	params.Add("field", "crash_free_rate(user)")
	params.Set("totals", "1")
	if filter.Environment != "" {
		params.Set("environment", filter.Environment)
	}

	endpoint := c.resolvePath(fmt.Sprintf("/organizations/%s/sessions/", c.cfg.Org))

	var response struct {
		Groups []struct {
			Totals map[string]*float64 `json:"totals"`
		} `json:"groups"`
	}
	if _, err := c.getJSON(ctx, endpoint, params, &response); err != nil {
		return models.CrashFreeRate{}, fmt.Errorf("sessions request: %w", err)
	}

	var rate models.CrashFreeRate
	for _, group := range response.Groups {
		if v := group.Totals["crash_free_rate(session)"]; v != nil {
			rate.Sessions = asPercent(*v)
		}
		if v := group.Totals["crash_free_rate(user)"]; v != nil {
			rate.Users = asPercent(*v)
		}
	}
	return rate, nil
}

// asPercent normalises upstream rates, which arrive either as a fraction
// or already as a percentage.
func asPercent(v float64) *float64 {
	if v <= 1 {
		v *= 100
	}
	return &v
}

// issuePayload mirrors the subset of the upstream issue shape the service
// consumes. Counts arrive as JSON strings from the issues API.
type issuePayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Level     string    `json:"level"`
	Count     flexInt   `json:"count"`
	UserCount flexInt   `json:"userCount"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
	Permalink string    `json:"permalink"`
}

func (p issuePayload) toSnapshot(org string) (models.IssueSnapshot, bool) {
	if p.ID == "" {
		return models.IssueSnapshot{}, false
	}
	link := p.Permalink
	if link == "" {
		link = fmt.Sprintf("https://sentry.io/organizations/%s/issues/%s/", org, p.ID)
	}
	return models.IssueSnapshot{
		IssueID:    p.ID,
		Title:      p.Title,
		Level:      models.ParseLevel(p.Level),
		EventCount: int(p.Count),
		UserCount:  int(p.UserCount),
		FirstSeen:  p.FirstSeen.UTC(),
		LastSeen:   p.LastSeen.UTC(),
		Link:       link,
	}, true
}

// flexInt coerces upstream count fields that may arrive as a number, a
// numeric string, or be missing entirely. Malformed values coerce to zero
// so one bad record cannot abort classification of the rest.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*f = flexInt(n)
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = flexInt(int(v))
		return nil
	}
	*f = 0
	return nil
}

// parseNextCursor extracts the rel="next" cursor from a Link header.
// Sentry marks an exhausted cursor with results="false" or a ":-1:"
// sentinel inside the cursor value.
func parseNextCursor(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}
	for _, part := range strings.Split(linkHeader, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		if strings.Contains(part, `results="false"`) {
			return ""
		}
		idx := strings.Index(part, "cursor=")
		if idx < 0 {
			return ""
		}
		cursor := part[idx+len("cursor="):]
		cursor = strings.Trim(cursor, `"`)
		if end := strings.IndexAny(cursor, `";>`); end >= 0 {
			cursor = cursor[:end]
		}
		if cursor == "" || strings.Contains(cursor, ":-1:") {
			return ""
		}
		return cursor
	}
	return ""
}

func windowCacheKey(window models.TimeRange, filter models.WindowFilter) string {
	return fmt.Sprintf("window:%d:%d:%s:%s",
		window.Start.Unix(), window.End.Unix(), filter.Environment, filter.Release)
}

func (c *SentryClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return c.cfg.BaseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	// Sentry endpoints require the trailing slash path.Join strips.
	if strings.HasSuffix(cleaned, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

func (c *SentryClient) getJSON(ctx context.Context, endpoint string, params url.Values, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveSentryRequest(metrics.OutcomeError)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveSentryRequest(metrics.OutcomeError)
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		return nil, utils.NewAppError("sentry.get", "unexpected status "+resp.Status, errors.New(truncateBody(body.String())))
	}
	metrics.ObserveSentryRequest(metrics.OutcomeSuccess)

	if out == nil {
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp.Header, nil
}

func truncateBody(s string) string {
	const max = 300
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
