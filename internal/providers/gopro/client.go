// Package gopro implements the MediaProvider port against the GoPro Cloud
// API. Authentication is cookie-based for read paths and OAuth for the
// refresh flow; both projections live in the same credential record.
package gopro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/driftwood-labs/driftsync/internal/core/domain"
	"github.com/driftwood-labs/driftsync/internal/core/ports/driven"
	"github.com/driftwood-labs/driftsync/internal/retry"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://api.gopro.com"

	// DefaultPageSize matches the page size the listing API performs best
	// at; larger pages get truncated server side.
	DefaultPageSize = 30

	// DefaultTimeout bounds individual API calls. Download streams are
	// bounded by the caller's context instead.
	DefaultTimeout = 60 * time.Second

	// proactiveRate throttles API calls below the provider's limit so the
	// reactive 429 path stays exceptional.
	proactiveRate = 2.0

	mediaSearchPath = "/media/search"
	tokenPath       = "/v1/oauth2/token"
)

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	BaseURL      string
	HTTPClient   *http.Client
	ClientID     string
	ClientSecret string
	PageSize     int
	Logger       *slog.Logger
}

// Client talks to the GoPro Cloud API.
type Client struct {
	baseURL      string
	http         *http.Client
	clientID     string
	clientSecret string
	pageSize     int
	limiter      *rate.Limiter
	logger       *slog.Logger
}

var _ driven.MediaProvider = (*Client)(nil)

// NewClient creates a GoPro API client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		http:         cfg.HTTPClient,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		pageSize:     cfg.PageSize,
		limiter:      rate.NewLimiter(rate.Limit(proactiveRate), 1),
		logger:       cfg.Logger,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return "gopro"
}

// Probe issues the cheapest authenticated listing call (one item) and
// returns the HTTP status code. Network failures return an error; HTTP
// errors do not, the caller branches on the code.
func (c *Client) Probe(ctx context.Context, cookieHeader, userAgent string) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+mediaSearchPath+"?per_page=1", nil)
	if err != nil {
		return 0, err
	}
	c.setAuthHeaders(req, cookieHeader, userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

// List pages through the media search API until the provider reports the
// last page or opts.MaxResults is reached. Each page fetch is retried on
// transient failures.
func (c *Client) List(ctx context.Context, creds *domain.Credentials, opts driven.ListOptions) ([]*domain.MediaItem, *domain.PageInfo, error) {
	page := opts.StartPage
	if page <= 0 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = c.pageSize
	}

	var items []*domain.MediaItem
	var lastInfo *domain.PageInfo

	for {
		var resp *searchResponse
		err := retry.APIPolicy().Do(ctx, func(ctx context.Context) error {
			var err error
			resp, err = c.fetchPage(ctx, creds, page, pageSize)
			return err
		})
		if err != nil {
			return nil, nil, fmt.Errorf("listing page %d: %w", page, err)
		}

		lastInfo = &domain.PageInfo{
			CurrentPage: resp.CurrentPage,
			TotalPages:  resp.TotalPages,
			PerPage:     resp.PerPage,
		}

		parsed, skipped := c.parseItems(resp.Media)
		if len(resp.Media) > 0 && len(parsed) == 0 {
			// Every item on a 200 page failed validation: the response
			// shape no longer matches the contract.
			return nil, nil, fmt.Errorf("page %d: all %d items malformed: %w",
				page, len(resp.Media), domain.ErrAPIStructureChanged)
		}
		if skipped > 0 {
			c.logger.Warn("skipped malformed media items",
				"page", page, "skipped", skipped, "parsed", len(parsed))
		}

		for _, item := range parsed {
			items = append(items, item)
			if opts.MaxResults > 0 && len(items) >= opts.MaxResults {
				c.logger.Info("listing reached max results", "max", opts.MaxResults)
				return items, lastInfo, nil
			}
		}

		if len(resp.Media) == 0 || lastInfo.LastPage() {
			break
		}
		page++
	}

	c.logger.Info("listing complete", "items", len(items), "pages", page)
	return items, lastInfo, nil
}

func (c *Client) fetchPage(ctx context.Context, creds *domain.Credentials, page, pageSize int) (*searchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(pageSize))
	q.Set("type", "Video")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+mediaSearchPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.setAuthHeaders(req, creds.Cookies, creds.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media search: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding media search response: %w", err)
	}
	if sr.CurrentPage == 0 {
		sr.CurrentPage = page
	}
	return &sr, nil
}

// ResolveDownloadURL fetches the variation list for a media item and picks
// the best match: the requested quality first, then "high". A 404 means the
// item vanished upstream.
func (c *Client) ResolveDownloadURL(ctx context.Context, creds *domain.Credentials, mediaID, quality string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/media/"+url.PathEscape(mediaID)+"/download", nil)
	if err != nil {
		return "", err
	}
	c.setAuthHeaders(req, creds.Cookies, creds.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolving download url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("media %s: %w", mediaID, domain.ErrSourceDeleted)
	}
	if err := c.checkStatus(resp); err != nil {
		return "", err
	}

	var dr downloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return "", fmt.Errorf("decoding download response: %w", err)
	}

	for _, label := range qualityLadder(quality) {
		for _, v := range dr.Embedded.Variations {
			if v.Label == label && v.URL != "" {
				return v.URL, nil
			}
		}
	}
	return "", fmt.Errorf("media %s has no %q variation: %w", mediaID, quality, domain.ErrQualityUnavailable)
}

// qualityLadder orders acceptable variation labels for a requested quality.
func qualityLadder(quality string) []string {
	if quality == "" || quality == "source" {
		return []string{"source", "high"}
	}
	return []string{quality}
}

// Download opens the media stream from a resolved URL. The URL carries its
// own signature so no auth headers are sent.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, int64, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, 0, err
	}

	start := time.Now()
	// Streams can outlive the client timeout; rely on ctx instead.
	resp, err := c.streamClient().Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", domain.ErrTransfer, err)
	}
	ttfb := time.Since(start)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, 0, 0, domain.ErrSourceDeleted
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent:
		resp.Body.Close()
		return nil, 0, 0, &domain.APIError{StatusCode: resp.StatusCode, Message: "download request failed"}
	}
	return resp.Body, resp.ContentLength, ttfb, nil
}

func (c *Client) streamClient() *http.Client {
	cp := *c.http
	cp.Timeout = 0
	return &cp
}

// Refresh exchanges the stored refresh token for a new access token. The
// returned copy carries the new token in both the OAuth fields and the
// gp_access_token cookie so the verification probe exercises what callers
// will actually use. The store is not touched.
func (c *Client) Refresh(ctx context.Context, creds *domain.Credentials) (*domain.Credentials, error) {
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token: %w", domain.ErrCredentialsUnavailable)
	}
	if c.clientID == "" || c.clientSecret == "" {
		return nil, fmt.Errorf("oauth client credentials not configured: %w", domain.ErrCredentialsUnavailable)
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": creds.RefreshToken,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("refresh token rejected: %w", domain.ErrTokenExpired)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &domain.APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token: %w", domain.ErrValidationFailed)
	}

	now := time.Now().UTC()
	refreshed := *creds
	refreshed.AccessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		refreshed.RefreshToken = tr.RefreshToken
	}
	if tr.UserID != "" {
		refreshed.UserID = tr.UserID
	}
	refreshed.TokenTimestamp = &now
	refreshed.Cookies = replaceCookie(creds.Cookies, domain.CookieAccessToken, tr.AccessToken)

	c.logger.Info("access token refreshed", "expires_in", tr.ExpiresIn)
	return &refreshed, nil
}

// replaceCookie swaps name's value within a cookie header, appending the
// cookie when absent.
func replaceCookie(header, name, value string) string {
	parts := strings.Split(header, ";")
	replaced := false
	for i, part := range parts {
		if strings.HasPrefix(strings.TrimSpace(part), name+"=") {
			parts[i] = name + "=" + value
			replaced = true
		} else {
			parts[i] = strings.TrimSpace(part)
		}
	}
	if header == "" {
		parts = parts[:0]
	}
	if !replaced {
		parts = append(parts, name+"="+value)
	}
	return strings.Join(parts, "; ")
}

func (c *Client) setAuthHeaders(req *http.Request, cookieHeader, userAgent string) {
	req.Header.Set("Cookie", cookieHeader)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", "https://gopro.com/")
}

// checkStatus maps HTTP error statuses to domain errors.
func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrTokenExpired)
	case resp.StatusCode == http.StatusTooManyRequests:
		return &domain.RateLimitError{RetryAfter: retryAfter(resp)}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &domain.APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
