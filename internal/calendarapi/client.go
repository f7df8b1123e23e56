package calendarapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"hospadmin/internal/blackout"
	"hospadmin/internal/metrics"
	"hospadmin/internal/weekly"
)

const cachePrefix = "hospadmin:"

// ErrNotFound is returned (wrapped in *HTTPError) when the backend answers 404.
var ErrNotFound = errors.New("calendar backend: not found")

// HTTPError is a non-2xx backend response.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("%s %s: http %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.Status, body)
}

func (e *HTTPError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Calendar is the backend calendar record. Name carries the encoded policy.
type Calendar struct {
	ID            string `json:"id"`
	ServiceItemID string `json:"serviceItemId"`
	Name          string `json:"name"`
	IsActive      bool   `json:"isActive"`
}

// CalendarInput is the body of a calendar create.
type CalendarInput struct {
	ServiceItemID string `json:"serviceItemId"`
	Name          string `json:"name"`
	IsActive      bool   `json:"isActive"`
}

// CalendarPatch is the body of a calendar update; nil fields are left unchanged.
type CalendarPatch struct {
	Name     *string `json:"name,omitempty"`
	IsActive *bool   `json:"isActive,omitempty"`
}

// Rule is a stored weekly rule.
type Rule struct {
	ID string `json:"id,omitempty"`
	weekly.Rule
}

// Client calls the external calendar backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests; rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger.With().Str("component", "calendarapi").Logger() }
}

// NewClient constructs a client for baseURL (e.g. "https://host/api/v1").
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseRedisCache configures optional Redis caching for GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// ListCalendars returns the calendars of a service item.
func (c *Client) ListCalendars(ctx context.Context, serviceItemID string) ([]Calendar, error) {
	path := "/calendars?serviceItemId=" + url.QueryEscape(serviceItemID)
	cacheKey := serviceItemKey(serviceItemID)
	var out []Calendar
	if c.readCache(ctx, cacheKey, &out) {
		return out, nil
	}
	if err := c.getList(ctx, path, &out); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, out)
	return out, nil
}

// GetCalendar returns one calendar.
func (c *Client) GetCalendar(ctx context.Context, id string) (*Calendar, error) {
	cacheKey := calendarKey(id)
	var out Calendar
	if c.readCache(ctx, cacheKey, &out) {
		return &out, nil
	}
	if err := c.do(ctx, http.MethodGet, "/calendars/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, out)
	return &out, nil
}

// CreateCalendar creates a calendar and returns the stored record.
func (c *Client) CreateCalendar(ctx context.Context, in CalendarInput) (*Calendar, error) {
	var out Calendar
	if err := c.do(ctx, http.MethodPost, "/calendars", in, &out); err != nil {
		return nil, err
	}
	if out.ServiceItemID == "" {
		out.ServiceItemID = in.ServiceItemID
	}
	c.invalidate(ctx, serviceItemKey(in.ServiceItemID))
	return &out, nil
}

// UpdateCalendar patches a calendar.
func (c *Client) UpdateCalendar(ctx context.Context, id string, patch CalendarPatch) (*Calendar, error) {
	var out Calendar
	if err := c.do(ctx, http.MethodPatch, "/calendars/"+url.PathEscape(id), patch, &out); err != nil {
		return nil, err
	}
	c.invalidateCalendar(ctx, id, out.ServiceItemID)
	return &out, nil
}

// DeleteCalendar removes a calendar.
func (c *Client) DeleteCalendar(ctx context.Context, id, serviceItemID string) error {
	if err := c.do(ctx, http.MethodDelete, "/calendars/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}
	c.invalidateCalendar(ctx, id, serviceItemID)
	return nil
}

// ListRules returns the weekly rules of a calendar.
func (c *Client) ListRules(ctx context.Context, calendarID string) ([]Rule, error) {
	cacheKey := rulesKey(calendarID)
	var out []Rule
	if c.readCache(ctx, cacheKey, &out) {
		return out, nil
	}
	if err := c.getList(ctx, "/calendars/"+url.PathEscape(calendarID)+"/rules", &out); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, out)
	return out, nil
}

// CreateRule adds a weekly rule to a calendar.
func (c *Client) CreateRule(ctx context.Context, calendarID string, rule weekly.Rule) (*Rule, error) {
	var out Rule
	if err := c.do(ctx, http.MethodPost, "/calendars/"+url.PathEscape(calendarID)+"/rules", rule, &out); err != nil {
		return nil, err
	}
	c.invalidate(ctx, rulesKey(calendarID))
	return &out, nil
}

// DeleteRule removes a weekly rule.
func (c *Client) DeleteRule(ctx context.Context, calendarID, ruleID string) error {
	path := "/calendars/" + url.PathEscape(calendarID) + "/rules/" + url.PathEscape(ruleID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	c.invalidate(ctx, rulesKey(calendarID))
	return nil
}

// ListBlackouts returns the blackouts of a calendar.
func (c *Client) ListBlackouts(ctx context.Context, calendarID string) ([]blackout.Range, error) {
	cacheKey := blackoutsKey(calendarID)
	var out []blackout.Range
	if c.readCache(ctx, cacheKey, &out) {
		return out, nil
	}
	if err := c.getList(ctx, "/calendars/"+url.PathEscape(calendarID)+"/blackouts", &out); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, out)
	return out, nil
}

// CreateBlackout adds a blackout range. The ID of r is ignored.
func (c *Client) CreateBlackout(ctx context.Context, calendarID string, r blackout.Range) (*blackout.Range, error) {
	r.ID = ""
	var out blackout.Range
	if err := c.do(ctx, http.MethodPost, "/calendars/"+url.PathEscape(calendarID)+"/blackouts", r, &out); err != nil {
		return nil, err
	}
	c.invalidate(ctx, blackoutsKey(calendarID))
	return &out, nil
}

// UpdateBlackout patches the blackout r.ID.
func (c *Client) UpdateBlackout(ctx context.Context, calendarID string, r blackout.Range) (*blackout.Range, error) {
	path := "/calendars/" + url.PathEscape(calendarID) + "/blackouts/" + url.PathEscape(r.ID)
	body := struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Reason string `json:"reason"`
	}{From: r.From, To: r.To, Reason: r.Reason}
	var out blackout.Range
	if err := c.do(ctx, http.MethodPatch, path, body, &out); err != nil {
		return nil, err
	}
	c.invalidate(ctx, blackoutsKey(calendarID))
	return &out, nil
}

// DeleteBlackout removes a blackout range.
func (c *Client) DeleteBlackout(ctx context.Context, calendarID, blackoutID string) error {
	path := "/calendars/" + url.PathEscape(calendarID) + "/blackouts/" + url.PathEscape(blackoutID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	c.invalidate(ctx, blackoutsKey(calendarID))
	return nil
}

// HealthCheck checks if the backend is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

// getList decodes either a bare JSON array or an envelope with "data" or
// "items", the shapes the backend uses for list endpoints.
func (c *Client) getList(ctx context.Context, path string, out any) error {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var env struct {
			Data  json.RawMessage `json:"data"`
			Items json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		raw = env.Data
		if len(raw) == 0 {
			raw = env.Items
		}
	}
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("[]")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncBackendRequest(method, 0)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.IncBackendRequest(method, resp.StatusCode)

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("backend error response")
		return &HTTPError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

func serviceItemKey(id string) string { return cachePrefix + "calendars:svc:" + id }
func calendarKey(id string) string    { return cachePrefix + "calendar:" + id }
func rulesKey(id string) string       { return cachePrefix + "calendar:" + id + ":rules" }
func blackoutsKey(id string) string   { return cachePrefix + "calendar:" + id + ":blackouts" }

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) invalidate(ctx context.Context, keys ...string) {
	if c.redis == nil || len(keys) == 0 {
		return
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

// invalidateCalendar drops every cached view of a calendar. When the service
// item is unknown all service item lists are dropped.
func (c *Client) invalidateCalendar(ctx context.Context, id, serviceItemID string) {
	if c.redis == nil {
		return
	}
	keys := []string{calendarKey(id), rulesKey(id), blackoutsKey(id)}
	if serviceItemID != "" {
		keys = append(keys, serviceItemKey(serviceItemID))
	} else {
		iter := c.redis.Scan(ctx, 0, serviceItemKey("*"), 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			c.logger.Warn().Err(err).Msg("cache scan failed")
		}
	}
	c.invalidate(ctx, keys...)
}
