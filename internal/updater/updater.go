package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"whisperkey/internal/ports"
)

const defaultReleaseURL = "https://api.github.com/repos/whisperkey/whisperkey/releases/latest"

// Result describes the outcome of a release check.
type Result struct {
	Available     bool
	LatestVersion string
	ReleaseURL    string
	ReleaseNotes  string
}

// Checker polls GitHub for a newer release.
type Checker struct {
	apiURL  string
	client  *http.Client
	version string
	log     *zap.Logger
}

func NewChecker(currentVersion string, log *zap.Logger) *Checker {
	return NewCheckerWithClient(currentVersion, defaultReleaseURL, &http.Client{Timeout: 5 * time.Second}, log)
}

func NewCheckerWithClient(currentVersion, apiURL string, client *http.Client, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{apiURL: apiURL, client: client, version: currentVersion, log: log}
}

// Check queries the latest release. Network and decode failures return an
// error; callers treat a failed check as "no update", never as fatal.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("release check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("release endpoint returned %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
		Body    string `json:"body"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&release); err != nil {
		return Result{}, fmt.Errorf("invalid release response: %w", err)
	}

	return Result{
		Available:     IsNewer(c.version, release.TagName),
		LatestVersion: strings.TrimPrefix(release.TagName, "v"),
		ReleaseURL:    release.HTMLURL,
		ReleaseNotes:  release.Body,
	}, nil
}

// NotifyIfAvailable runs a check and raises a desktop notification when a
// newer release exists. All failures are logged and swallowed.
func (c *Checker) NotifyIfAvailable(ctx context.Context, notifier ports.Notifier) {
	result, err := c.Check(ctx)
	if err != nil {
		c.log.Warn("update check failed", zap.Error(err))
		return
	}
	if !result.Available {
		c.log.Debug("no update available", zap.String("latest", result.LatestVersion))
		return
	}

	c.log.Info("update available", zap.String("latest", result.LatestVersion))
	body := fmt.Sprintf("Version %s is available.", result.LatestVersion)
	if err := notifier.Notify("WhisperKey update", body); err != nil {
		c.log.Warn("update notification failed", zap.Error(err))
	}
}

// IsNewer reports whether latest is a higher version than current. Both
// sides tolerate a v prefix, ragged lengths, and prerelease suffixes.
func IsNewer(current, latest string) bool {
	cur := parseVersion(current)
	lat := parseVersion(latest)

	width := len(cur)
	if len(lat) > width {
		width = len(lat)
	}
	for i := 0; i < width; i++ {
		c, l := 0, 0
		if i < len(cur) {
			c = cur[i]
		}
		if i < len(lat) {
			l = lat[i]
		}
		if l != c {
			return l > c
		}
	}
	return false
}

func parseVersion(text string) []int {
	clean := strings.TrimLeft(strings.TrimSpace(text), "vV")
	if i := strings.IndexAny(clean, "-+"); i >= 0 {
		clean = clean[:i]
	}

	var parts []int
	for _, segment := range strings.Split(clean, ".") {
		digits := leadingDigits(segment)
		if digits == "" {
			break
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			break
		}
		parts = append(parts, n)
	}
	if len(parts) == 0 {
		return []int{0}
	}
	return parts
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}
