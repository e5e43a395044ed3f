package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ochairo/feedstock/internal/domain/interfaces"
)

const (
	// DefaultPyPIURL is the index queried for release metadata
	DefaultPyPIURL = "https://pypi.org"

	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 32 * time.Second
)

// VersionFetcher looks up the latest released version of a project on PyPI
type VersionFetcher struct {
	httpClient     *http.Client
	baseURL        string
	initialBackoff time.Duration
	logger         interfaces.Logger
}

// NewVersionFetcher creates a version fetcher for the index at baseURL
func NewVersionFetcher(baseURL string, logger interfaces.Logger) *VersionFetcher {
	if baseURL == "" {
		baseURL = DefaultPyPIURL
	}
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &VersionFetcher{
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		initialBackoff: initialBackoff,
		logger:         logger,
	}
}

type pypiProject struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Yanked  bool   `json:"yanked"`
	} `json:"info"`
	Releases map[string][]struct {
		Yanked bool `json:"yanked"`
	} `json:"releases"`
}

// FetchLatestVersion returns the newest non-yanked version PyPI lists for name
func (vf *VersionFetcher) FetchLatestVersion(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("project name is required")
	}

	endpoint := fmt.Sprintf("%s/pypi/%s/json", vf.baseURL, url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "feedstock/1.0")

	resp, err := vf.doWithRetry(ctx, req)
	if err != nil {
		return "", fmt.Errorf("PyPI request failed: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("project %s not found on PyPI", name)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("PyPI error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var project pypiProject
	if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
		return "", fmt.Errorf("failed to parse PyPI response: %w", err)
	}

	latest := project.Info.Version
	if latest != "" && !project.Info.Yanked {
		return latest, nil
	}

	// info.version is yanked or missing: pick the highest release with a live file
	latest = ""
	for version, files := range project.Releases {
		live := false
		for _, f := range files {
			if !f.Yanked {
				live = true
				break
			}
		}
		if live && (latest == "" || CompareVersions(version, latest) > 0) {
			latest = version
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no releases found for %s", name)
	}
	return latest, nil
}

// doWithRetry executes an HTTP request with exponential backoff retry
func (vf *VersionFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := vf.backoff(attempt - 1)
			vf.logger.Debug("retrying PyPI request", interfaces.F("attempt", attempt), interfaces.F("backoff", backoff))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err = vf.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Network errors are retryable
			if attempt < maxRetries {
				continue
			}
			return nil, err
		}

		if !isRetryableError(resp.StatusCode) || attempt == maxRetries {
			return resp, nil
		}

		//nolint:errcheck,gosec // G104: Best effort close before retry
		resp.Body.Close()
	}

	return resp, err
}

// backoff returns the backoff duration for a retry attempt
func (vf *VersionFetcher) backoff(attempt int) time.Duration {
	backoff := float64(vf.initialBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}

func isRetryableError(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

var versionPattern = regexp.MustCompile(
	`^v?(\d+(?:\.\d+)*)` +
		`(?:[-_.]?(a|b|c|rc|alpha|beta|pre|preview)[-_.]?(\d*))?` +
		`(?:[-_.]?(post|rev|r)[-_.]?(\d*))?` +
		`(?:[-_.]?(dev)[-_.]?(\d*))?$`)

type parsedVersion struct {
	release []int
	preRank int // -1 dev-only release, 0 alpha, 1 beta, 2 rc, 3 final
	preNum  int
	post    int // -1 when absent
	dev     int // math.MaxInt when absent
}

func parseVersion(v string) (parsedVersion, bool) {
	m := versionPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(v)))
	if m == nil {
		return parsedVersion{}, false
	}

	var pv parsedVersion
	for _, part := range strings.Split(m[1], ".") {
		n, _ := strconv.Atoi(part)
		pv.release = append(pv.release, n)
	}

	switch m[2] {
	case "a", "alpha":
		pv.preRank = 0
	case "b", "beta":
		pv.preRank = 1
	case "c", "rc", "pre", "preview":
		pv.preRank = 2
	default:
		pv.preRank = 3
	}
	pv.preNum, _ = strconv.Atoi(m[3])

	pv.post = -1
	if m[4] != "" {
		pv.post, _ = strconv.Atoi(m[5])
	}

	pv.dev = math.MaxInt
	if m[6] != "" {
		pv.dev, _ = strconv.Atoi(m[7])
		if m[2] == "" && m[4] == "" {
			pv.preRank = -1
		}
	}
	return pv, true
}

// CompareVersions orders Python release versions: dev releases sort before
// pre-releases, which sort before the final release and its post releases.
// Returns 1 if v1 > v2, -1 if v1 < v2, 0 if equal. Unparsable versions
// compare as plain strings.
func CompareVersions(v1, v2 string) int {
	p1, ok1 := parseVersion(v1)
	p2, ok2 := parseVersion(v2)
	if !ok1 || !ok2 {
		return strings.Compare(v1, v2)
	}

	n := max(len(p1.release), len(p2.release))
	for i := 0; i < n; i++ {
		var a, b int
		if i < len(p1.release) {
			a = p1.release[i]
		}
		if i < len(p2.release) {
			b = p2.release[i]
		}
		if c := cmpInt(a, b); c != 0 {
			return c
		}
	}

	for _, pair := range [][2]int{
		{p1.preRank, p2.preRank},
		{p1.preNum, p2.preNum},
		{p1.post, p2.post},
		{p1.dev, p2.dev},
	} {
		if c := cmpInt(pair[0], pair[1]); c != 0 {
			return c
		}
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}
