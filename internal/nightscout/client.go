// Package nightscout provides a client for interacting with the Nightscout API
// and a converter from Nightscout records to device events
package nightscout

import (
	"context"
	"crypto/sha1" //nolint:gosec // Required for Nightscout API secret hashing (legacy API requirement)
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrcode/nightscout-basics/internal/models"
)

// ErrNoProfile is returned when the site has no profile documents
var ErrNoProfile = errors.New("no profile found")

// maxTreatments caps a single treatments query
const maxTreatments = 10000

// Client handles communication with the Nightscout API
type Client struct {
	baseURL    string
	apiSecret  string
	apiToken   string
	useToken   bool
	httpClient *http.Client
}

// NewClient creates a new Nightscout client
func NewClient(baseURL, apiSecret, apiToken string, useToken bool) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiSecret: apiSecret,
		apiToken:  apiToken,
		useToken:  useToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientFromSettings creates a client for the configured site
func NewClientFromSettings(settings *models.Settings) *Client {
	return NewClient(settings.NightscoutURL, settings.APISecret, settings.APIToken, settings.UseToken)
}

// hashSecret generates SHA1 hash of the API secret
// Note: SHA1 is required for Nightscout API compatibility
func hashSecret(secret string) string {
	hasher := sha1.New() //nolint:gosec // Required for Nightscout API
	hasher.Write([]byte(secret))
	return hex.EncodeToString(hasher.Sum(nil))
}

// buildRequest creates an HTTP request with proper authentication
func (c *Client) buildRequest(ctx context.Context, method, endpoint string, params url.Values) (*http.Request, error) {
	fullURL := c.baseURL + endpoint
	if params != nil {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	// Add authentication
	if c.useToken && c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	} else if c.apiSecret != "" {
		req.Header.Set("API-SECRET", hashSecret(c.apiSecret))
	}

	return req, nil
}

// doRequest executes an HTTP request and returns the response body
func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// getJSON performs a GET and decodes the body into out
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, what string, out any) error {
	req, err := c.buildRequest(ctx, http.MethodGet, endpoint, params)
	if err != nil {
		return err
	}

	body, err := c.doRequest(req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing %s: %w", what, err)
	}
	return nil
}

// GetStatus retrieves the Nightscout server status
func (c *Client) GetStatus(ctx context.Context) (*models.ServerStatus, error) {
	var status models.ServerStatus
	if err := c.getJSON(ctx, "/api/v1/status", nil, "status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TestConnection tests if the connection to Nightscout works
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.GetStatus(ctx)
	return err
}

// GetEntries retrieves sensor, meter and calibration entries for a time range
func (c *Client) GetEntries(ctx context.Context, from, to time.Time, count int) ([]models.GlucoseEntry, error) {
	params := url.Values{}

	if !from.IsZero() {
		params.Set("find[date][$gte]", strconv.FormatInt(from.UnixMilli(), 10))
	}
	if !to.IsZero() {
		params.Set("find[date][$lt]", strconv.FormatInt(to.UnixMilli(), 10))
	}
	if count > 0 {
		params.Set("count", strconv.Itoa(count))
	}

	var entries []models.GlucoseEntry
	if err := c.getJSON(ctx, "/api/v1/entries.json", params, "entries", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetTreatments retrieves treatments created in a time range
func (c *Client) GetTreatments(ctx context.Context, from, to time.Time, count int) ([]models.Treatment, error) {
	params := url.Values{}

	if !from.IsZero() {
		params.Set("find[created_at][$gte]", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		params.Set("find[created_at][$lt]", to.UTC().Format(time.RFC3339))
	}
	if count > 0 {
		params.Set("count", strconv.Itoa(count))
	}

	var treatments []models.Treatment
	if err := c.getJSON(ctx, "/api/v1/treatments.json", params, "treatments", &treatments); err != nil {
		return nil, err
	}
	return treatments, nil
}

// GetProfile retrieves the most recent profile document
func (c *Client) GetProfile(ctx context.Context) (*models.Profile, error) {
	var profiles []models.Profile
	if err := c.getJSON(ctx, "/api/v1/profile.json", nil, "profile", &profiles); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, ErrNoProfile
	}
	return &profiles[0], nil
}

// Dataset is everything fetched from a site for one report
type Dataset struct {
	Status     *models.ServerStatus
	Entries    []models.GlucoseEntry
	Treatments []models.Treatment
	Profile    *models.Profile
}

// FetchDataset loads status, entries, treatments and profile for [from, to)
// concurrently. A site without a profile is not an error.
func (c *Client) FetchDataset(ctx context.Context, from, to time.Time) (*Dataset, error) {
	ds := &Dataset{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		status, err := c.GetStatus(ctx)
		if err != nil {
			return fmt.Errorf("fetching status: %w", err)
		}
		ds.Status = status
		return nil
	})
	g.Go(func() error {
		// two readings per 5 minutes leaves room for meter and calibration entries
		count := int(to.Sub(from)/(5*time.Minute))*2 + 100
		entries, err := c.GetEntries(ctx, from, to, count)
		if err != nil {
			return fmt.Errorf("fetching entries: %w", err)
		}
		ds.Entries = entries
		return nil
	})
	g.Go(func() error {
		treatments, err := c.GetTreatments(ctx, from, to, maxTreatments)
		if err != nil {
			return fmt.Errorf("fetching treatments: %w", err)
		}
		ds.Treatments = treatments
		return nil
	})
	g.Go(func() error {
		profile, err := c.GetProfile(ctx)
		if errors.Is(err, ErrNoProfile) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetching profile: %w", err)
		}
		ds.Profile = profile
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ds, nil
}
