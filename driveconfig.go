package onedrived

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
)

// DefaultMaxGetSize is the largest range requested at once when downloading.
const DefaultMaxGetSize int64 = 8 * 1024 * 1024

// DriveConfig is the local configuration of a paired drive.
//
// Zero fields take the value of the defaults of the Root, see
// WithDriveDefaults. Ignore patterns are added to the default patterns
// and proxies override the default proxy of the same scheme.
type DriveConfig struct {
	LocalRoot   string            `json:"local_root,omitempty"`
	MaxGetSize  int64             `json:"max_get_size_bytes,omitempty"`
	MaxPutSize  int64             `json:"max_put_size_bytes,omitempty"`
	IgnoreFiles []string          `json:"ignore_files,omitempty"`
	Proxies     map[string]string `json:"proxies,omitempty"`
}

// merge returns the defaults overridden by config.
func (defaults DriveConfig) merge(config DriveConfig) DriveConfig {
	merged := DriveConfig{
		LocalRoot:   defaults.LocalRoot,
		MaxGetSize:  defaults.MaxGetSize,
		MaxPutSize:  defaults.MaxPutSize,
		IgnoreFiles: slices.Clone(defaults.IgnoreFiles),
	}

	if config.LocalRoot != "" {
		merged.LocalRoot = config.LocalRoot
	}

	if config.MaxGetSize > 0 {
		merged.MaxGetSize = config.MaxGetSize
	}

	if config.MaxPutSize > 0 {
		merged.MaxPutSize = config.MaxPutSize
	}

	for _, pattern := range config.IgnoreFiles {
		if !slices.Contains(merged.IgnoreFiles, pattern) {
			merged.IgnoreFiles = append(merged.IgnoreFiles, pattern)
		}
	}

	if len(defaults.Proxies)+len(config.Proxies) > 0 {
		merged.Proxies = make(map[string]string)
		for scheme, proxy := range defaults.Proxies {
			merged.Proxies[scheme] = proxy
		}
		for scheme, proxy := range config.Proxies {
			merged.Proxies[scheme] = proxy
		}
	}

	return merged
}

// diff returns the parts of config which differ from the defaults.
// Merging the result onto the same defaults gives config back.
func (defaults DriveConfig) diff(config DriveConfig) DriveConfig {
	var d DriveConfig

	if config.LocalRoot != defaults.LocalRoot {
		d.LocalRoot = config.LocalRoot
	}

	if config.MaxGetSize != defaults.MaxGetSize {
		d.MaxGetSize = config.MaxGetSize
	}

	if config.MaxPutSize != defaults.MaxPutSize {
		d.MaxPutSize = config.MaxPutSize
	}

	for _, pattern := range config.IgnoreFiles {
		if !slices.Contains(defaults.IgnoreFiles, pattern) {
			d.IgnoreFiles = append(d.IgnoreFiles, pattern)
		}
	}

	for scheme, proxy := range config.Proxies {
		if defaults.Proxies[scheme] != proxy {
			if d.Proxies == nil {
				d.Proxies = make(map[string]string)
			}
			d.Proxies[scheme] = proxy
		}
	}

	return d
}

// Ignored reports whether the remote path, or one of its parent folders,
// matches an ignore pattern. Patterns containing a slash are matched
// against the path from the drive root, other patterns against the name.
func (config DriveConfig) Ignored(remotePath string) bool {
	for p := path.Clean("/" + remotePath); p != "/"; p = path.Dir(p) {
		for _, pattern := range config.IgnoreFiles {
			target := path.Base(p)
			if strings.Contains(pattern, "/") {
				target = p
			}

			if ok, _ := path.Match(pattern, target); ok {
				return true
			}
		}
	}

	return false
}

// proxyFunc maps request schemes onto the configured proxies.
// Schemes without a proxy fall back to the environment.
func proxyFunc(proxies map[string]string) (func(*http.Request) (*url.URL, error), error) {
	parsed := make(map[string]*url.URL, len(proxies))
	for scheme, proxy := range proxies {
		if !strings.Contains(proxy, "://") {
			proxy = "http://" + proxy
		}

		u, err := url.Parse(proxy)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("proxy %v for %v: %w", proxy, scheme, ErrInvalidArgument)
		}

		parsed[scheme] = u
	}

	return func(req *http.Request) (*url.URL, error) {
		if u, ok := parsed[req.URL.Scheme]; ok {
			return u, nil
		}

		return http.ProxyFromEnvironment(req)
	}, nil
}

// withProxies returns a fetcher sending its requests through the proxies.
// Without proxies the fetcher itself is returned.
func (fetch *fetcher) withProxies(proxies map[string]string) (*fetcher, error) {
	if len(proxies) == 0 {
		return fetch, nil
	}

	proxy, err := proxyFunc(proxies)
	if err != nil {
		return nil, err
	}

	var transport *http.Transport
	switch t := fetch.client.Transport.(type) {
	case nil:
		transport = http.DefaultTransport.(*http.Transport).Clone()
	case *http.Transport:
		transport = t.Clone()
	default:
		return nil, fmt.Errorf("proxies need an *http.Transport, got %T: %w", t, ErrInvalidArgument)
	}

	transport.Proxy = proxy

	client := *fetch.client
	client.Transport = transport

	clone := *fetch
	clone.client = &client
	return &clone, nil
}
