package tle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// celestrakBase is the CelesTrak GP data endpoint. Queries select satellites
// by group, name substring, or NORAD catalog number.
const celestrakBase = "https://celestrak.org/NORAD/elements/gp.php"

// maxBodyBytes caps TLE response bodies. A full catalog is ~3 MB; anything
// near this limit is a misbehaving upstream.
const maxBodyBytes = 50 * 1024 * 1024

// GroupURL returns the fetch URL for a named CelesTrak group (e.g. "starlink").
func GroupURL(group string) string {
	q := url.Values{"GROUP": {group}, "FORMAT": {"tle"}}
	return celestrakBase + "?" + q.Encode()
}

// NameURL returns the fetch URL for a satellite name substring search.
func NameURL(name string) string {
	q := url.Values{"NAME": {name}, "FORMAT": {"tle"}}
	return celestrakBase + "?" + q.Encode()
}

// CatalogURL returns the fetch URL for a single NORAD catalog number.
func CatalogURL(noradID int) string {
	q := url.Values{"CATNR": {strconv.Itoa(noradID)}, "FORMAT": {"tle"}}
	return celestrakBase + "?" + q.Encode()
}

// Fetcher retrieves raw TLE data from a primary source plus optional extra
// per-satellite sources, concatenating the results.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher. An empty primary URL defaults to the
// CelesTrak active-satellites group.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = GroupURL("active")
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured primary source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch retrieves the primary source and all extra sources, concatenated.
// The primary source must succeed; a failing extra source is logged and
// skipped so one stale per-satellite URL does not block the whole refresh.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	primary, err := f.fetchOne(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(primary)

	for _, u := range f.extraURLs {
		data, err := f.fetchOne(ctx, u)
		if err != nil {
			f.logger.Warn("extra TLE source fetch failed", "url", u, "error", err)
			continue
		}
		if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
			buf.WriteByte('\n')
		}
		buf.Write(data)
	}

	return buf.Bytes(), nil
}

func (f *Fetcher) fetchOne(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, sourceURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", sourceURL, maxBodyBytes)
	}

	return body, nil
}
