package cargo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"
)

// DefaultIndexURL is the crates.io sparse index.
const DefaultIndexURL = "https://index.crates.io"

// RegistryVersion is one published version of a crate as the sparse index
// reports it.
type RegistryVersion struct {
	Version  *semver.Version
	Yanked   bool
	Features map[string][]string
}

// VersionFeed supplies the published versions of a crate. The live
// implementation is RegistryClient; tests substitute a map.
type VersionFeed interface {
	Versions(ctx context.Context, name string) ([]RegistryVersion, error)
}

// RegistryClient reads crate version listings from a sparse registry index
// over HTTP. Results are cached for the lifetime of the client; the engine
// creates one client per resolution pass so the cache naturally expires
// with it.
type RegistryClient struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	cache map[string][]RegistryVersion
}

func NewRegistryClient(baseURL string) *RegistryClient {
	if baseURL == "" {
		baseURL = DefaultIndexURL
	}
	return &RegistryClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		cache:   make(map[string][]RegistryVersion),
	}
}

// indexPath computes the sparse-index path for a crate name: 1-, 2- and
// 3-character names have dedicated prefixes, longer names shard on the
// first four characters.
func indexPath(name string) string {
	name = strings.ToLower(name)
	switch len(name) {
	case 0:
		return ""
	case 1:
		return "1/" + name
	case 2:
		return "2/" + name
	case 3:
		return fmt.Sprintf("3/%s/%s", name[:1], name)
	default:
		return fmt.Sprintf("%s/%s/%s", name[:2], name[2:4], name)
	}
}

func (c *RegistryClient) Versions(ctx context.Context, name string) ([]RegistryVersion, error) {
	c.mu.Lock()
	if cached, ok := c.cache[name]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	p := indexPath(name)
	if p == "" {
		return nil, fmt.Errorf("empty crate name")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+p, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching index entry for %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index entry for %s: HTTP %d", name, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	versions := ParseIndexEntries(string(body))
	c.mu.Lock()
	c.cache[name] = versions
	c.mu.Unlock()
	return versions, nil
}

// ParseIndexEntries decodes the newline-delimited JSON of a sparse index
// file. Unparseable lines and versions are skipped.
func ParseIndexEntries(body string) []RegistryVersion {
	var versions []RegistryVersion
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !gjson.Valid(line) {
			continue
		}
		vers := gjson.Get(line, "vers").String()
		v, err := semver.NewVersion(vers)
		if err != nil {
			continue
		}
		entry := RegistryVersion{
			Version:  v,
			Yanked:   gjson.Get(line, "yanked").Bool(),
			Features: map[string][]string{},
		}
		for _, field := range []string{"features", "features2"} {
			gjson.Get(line, field).ForEach(func(key, value gjson.Result) bool {
				var enables []string
				value.ForEach(func(_, item gjson.Result) bool {
					enables = append(enables, item.String())
					return true
				})
				entry.Features[key.String()] = enables
				return true
			})
		}
		versions = append(versions, entry)
	}
	return versions
}
