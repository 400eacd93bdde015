package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	baseURL             = "https://oauth.reddit.com"
	authURL             = "https://www.reddit.com/api/v1/access_token"
	defaultLimit        = 100 // max number of items per listing request
	DefaultRequestDelay = 1100 * time.Millisecond
)

// Credentials holds the Reddit app and account used to authenticate.
// Username and Password are needed for moderator actions; without them
// the client falls back to application-only (read-only) auth.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// RedditAPI represents a Reddit API client
type RedditAPI struct {
	creds       Credentials
	baseURL     string
	authURL     string
	httpClient  *http.Client
	accessToken string
	tokenExpiry time.Time
	mutex       sync.RWMutex
	log         *logrus.Logger
	limiter     *rate.Limiter

	rateRemainingCached int
	rateResetCached     int
	rateUsedCached      int
	rateHeadersMutex    sync.RWMutex
}

// NewRedditAPI creates a new Reddit API client.
// Every request, auth included, waits at least requestDelay after the previous one.
func NewRedditAPI(creds Credentials, requestDelay time.Duration, log *logrus.Logger) *RedditAPI {
	limit := rate.Inf
	if requestDelay > 0 {
		limit = rate.Every(requestDelay)
	}

	return &RedditAPI{
		creds:           creds,
		baseURL:         baseURL,
		authURL:         authURL,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		log:             log,
		limiter:         rate.NewLimiter(limit, 1), // no burst
		rateResetCached: 600,
	}
}

// GetRateLimitStatus returns the current rate limit status (remaining requests, reset time in seconds, and used requests)
func (r *RedditAPI) GetRateLimitStatus() (int, int, int) {
	r.rateHeadersMutex.RLock()
	defer r.rateHeadersMutex.RUnlock()
	return r.rateRemainingCached, r.rateResetCached, r.rateUsedCached
}

// authenticate authenticates with the Reddit API
func (r *RedditAPI) authenticate(ctx context.Context) error {
	r.mutex.RLock()
	token := r.accessToken
	expiry := r.tokenExpiry
	r.mutex.RUnlock()

	if token != "" && time.Now().Before(expiry) {
		return nil
	}

	r.log.Info("Authenticating with Reddit API")

	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait during authentication: %w", err)
	}

	data := url.Values{}
	if r.creds.Username != "" && r.creds.Password != "" {
		r.log.WithField("username", r.creds.Username).Debug("Using script app password auth")
		data.Set("grant_type", "password")
		data.Set("username", r.creds.Username)
		data.Set("password", r.creds.Password)
	} else {
		r.log.Debug("Using application-only auth with client credentials")
		data.Set("grant_type", "client_credentials")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.authURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create auth request: %w", err)
	}

	req.SetBasicAuth(r.creds.ClientID, r.creds.ClientSecret)
	req.Header.Set("User-Agent", r.creds.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute auth request: %w", err)
	}
	defer resp.Body.Close()

	r.updateRateLimits(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("auth request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var authResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
		Error       string `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}

	// reddit answers bad passwords with a 200 and an error field
	if authResp.Error != "" || authResp.AccessToken == "" {
		return fmt.Errorf("auth request rejected: %q", authResp.Error)
	}

	r.mutex.Lock()
	r.accessToken = authResp.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(authResp.ExpiresIn) * time.Second)
	r.mutex.Unlock()

	r.log.Info("Successfully authenticated with Reddit API")
	return nil
}

// get performs an authenticated GET against path and decodes the JSON body into out
func (r *RedditAPI) get(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("raw_json", "1")

	endpoint := r.baseURL + path + "?" + query.Encode()
	return r.do(ctx, http.MethodGet, endpoint, nil, out)
}

// post performs an authenticated form POST against path and decodes the JSON body into out
func (r *RedditAPI) post(ctx context.Context, path string, form url.Values, out any) error {
	return r.do(ctx, http.MethodPost, r.baseURL+path, form, out)
}

func (r *RedditAPI) do(ctx context.Context, method, endpoint string, form url.Values, out any) error {
	if err := r.authenticate(ctx); err != nil {
		return err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	r.mutex.RLock()
	token := r.accessToken
	r.mutex.RUnlock()

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", r.creds.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	r.log.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
	}).Debug("Calling Reddit API")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	r.updateRateLimits(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		r.log.WithFields(logrus.Fields{
			"endpoint":      endpoint,
			"response_body": string(respBody),
			"status_code":   resp.StatusCode,
		}).Error("Reddit API error response")
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// updateRateLimits caches the rate limit headers for logging
func (r *RedditAPI) updateRateLimits(resp *http.Response) {
	// X-Ratelimit-Used: Approximate number of requests used in this period
	// X-Ratelimit-Remaining: Approximate number of requests left to use
	// X-Ratelimit-Reset: Approximate number of seconds to end of period
	used := getHeaderAsInt(resp.Header, "X-Ratelimit-Used")
	remaining := getHeaderAsInt(resp.Header, "X-Ratelimit-Remaining")
	reset := getHeaderAsInt(resp.Header, "X-Ratelimit-Reset")

	// skip if we didn't get valid headers for some reason
	if reset == 0 && used == 0 {
		return
	}

	r.rateHeadersMutex.Lock()
	r.rateRemainingCached = remaining
	r.rateResetCached = reset
	r.rateUsedCached = used
	r.rateHeadersMutex.Unlock()

	r.log.WithFields(logrus.Fields{
		"used":      used,
		"remaining": remaining,
		"reset_sec": reset,
	}).Debug("Updated rate limit status from Reddit headers")
}

func getHeaderAsInt(header http.Header, name string) int {
	value := header.Get(name)
	if value == "" {
		return 0
	}

	// reddit sends remaining as a float, ie "596.0"
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return int(f)
	}

	return 0
}
