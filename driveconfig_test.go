package onedrived

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDefaults = DriveConfig{
	MaxGetSize:  100,
	MaxPutSize:  10,
	IgnoreFiles: []string{"*.tmp", "/a"},
}

func TestDriveConfigMerge(t *testing.T) {
	merged := testDefaults.merge(DriveConfig{MaxGetSize: 50})
	assert.Equal(t, int64(50), merged.MaxGetSize)
	assert.Equal(t, int64(10), merged.MaxPutSize)
	assert.Equal(t, []string{"*.tmp", "/a"}, merged.IgnoreFiles)

	merged = testDefaults.merge(DriveConfig{IgnoreFiles: []string{"/a", "/q"}})
	assert.Equal(t, []string{"*.tmp", "/a", "/q"}, merged.IgnoreFiles)

	// the defaults are not modified
	assert.Equal(t, []string{"*.tmp", "/a"}, testDefaults.IgnoreFiles)
}

func TestDriveConfigDiff(t *testing.T) {
	config := testDefaults.merge(DriveConfig{
		LocalRoot:   "/home/a/OneDrive",
		IgnoreFiles: []string{"/q"},
		Proxies:     map[string]string{"sock5": "1.2.3.4:5"},
	})

	d := testDefaults.diff(config)
	assert.Equal(t, DriveConfig{
		LocalRoot:   "/home/a/OneDrive",
		IgnoreFiles: []string{"/q"},
		Proxies:     map[string]string{"sock5": "1.2.3.4:5"},
	}, d)

	assert.Equal(t, config, testDefaults.merge(d))
	assert.Equal(t, DriveConfig{}, testDefaults.diff(testDefaults))

	data, err := json.Marshal(testDefaults.diff(testDefaults.merge(DriveConfig{MaxPutSize: 20})))
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_put_size_bytes":20}`, string(data))
}

func TestDriveConfigIgnored(t *testing.T) {
	config := DriveConfig{IgnoreFiles: []string{"*.tmp", "/Private", "node_modules", "/Documents/*.bak"}}

	var testCases = map[string]bool{
		"/a.tmp":                     true,
		"/Documents/b.tmp":           true,
		"/Private":                   true,
		"/Private/photo.jpg":         true,
		"/Documents/Private":         false,
		"/code/node_modules/x/y.js":  true,
		"/Documents/old.bak":         true,
		"/Documents/Archive/old.bak": false,
		"/Documents/a.txt":           false,
		"/":                          false,
	}

	for p, expected := range testCases {
		assert.Equal(t, expected, config.Ignored(p), p)
	}
}

func TestDriveConfigProxies(t *testing.T) {
	drive, _, _ := setupDrive(t, func(w http.ResponseWriter, r *http.Request) {})
	assert.Same(t, drive.root.fetch, drive.fetcher())

	config := drive.Config()
	config.Proxies = map[string]string{"https": "proxy.local:3128"}
	require.NoError(t, drive.SetConfig(config))

	fetch := drive.fetcher()
	require.NotSame(t, drive.root.fetch, fetch)

	transport, ok := fetch.client.Transport.(*http.Transport)
	require.True(t, ok)

	req := &http.Request{URL: &url.URL{Scheme: "https", Host: "graph.microsoft.com"}}
	proxy, err := transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.local:3128", proxy.String())

	// an invalid proxy keeps the previous configuration
	config.Proxies = map[string]string{"https": "http://"}
	assert.ErrorIs(t, drive.SetConfig(config), ErrInvalidArgument)
	assert.Same(t, fetch, drive.fetcher())
	assert.Equal(t, "proxy.local:3128", drive.Config().Proxies["https"])

	// the proxies survive a dump
	dump, err := drive.Dump()
	require.NoError(t, err)

	loaded, err := LoadDrive(drive.root, dump)
	require.NoError(t, err)
	assert.Equal(t, drive.Config(), loaded.Config())
	assert.NotSame(t, drive.root.fetch, loaded.fetcher())
}

func TestDriveDefaults(t *testing.T) {
	root := New(StaticAccount("A", AccountPersonal, &mockAuth{}),
		WithMaxPutSize(4),
		WithMaxGetSize(8),
		WithDriveDefaults(DriveConfig{IgnoreFiles: []string{"*.tmp"}}))

	drive := root.newDrive(DriveInfo{ID: "D"}, DriveConfig{MaxPutSize: 6, IgnoreFiles: []string{"/q"}})
	assert.Equal(t, DriveConfig{
		MaxGetSize:  8,
		MaxPutSize:  6,
		IgnoreFiles: []string{"*.tmp", "/q"},
	}, drive.Config())

	// an invalid configuration falls back to the defaults
	drive = root.newDrive(DriveInfo{ID: "E"}, DriveConfig{Proxies: map[string]string{"https": "http://"}})
	assert.Equal(t, int64(4), drive.Config().MaxPutSize)
	assert.Empty(t, drive.Config().Proxies)
	assert.Same(t, root.fetch, drive.fetcher())
}
