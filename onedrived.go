// Package onedrived synchronises a local directory with a OneDrive drive.
//
// It provides a read-only model of drive items, a client for the drive
// operations needed by a sync engine (listing, folder creation, metadata
// updates, ranged downloads and resumable chunked uploads) and a registry
// persisting which drives are paired with which local directory.
package onedrived

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxPutSize is the largest payload sent in a single request.
// Larger files go through an upload session in chunks of this size.
// Chunks must be a multiple of 320 KiB and single requests are capped at 4 MiB.
const DefaultMaxPutSize int64 = 12 * 320 * 1024

const defaultMaxRetries = 5

// Authenticator represents any struct which can create an access token on demand
type Authenticator interface {
	AccessToken() (string, int64, error)
}

// AccountType tells personal and business accounts apart.
// An account id is only unique within its type.
type AccountType string

const (
	AccountPersonal AccountType = "personal"
	AccountBusiness AccountType = "business"
)

// Account is an authenticated OneDrive account.
type Account interface {
	Authenticator
	ID() string
	Type() AccountType
}

// Root is the entry point to the drives of one account.
type Root struct {
	account  Account
	baseURL  string
	defaults DriveConfig
	now      func() time.Time

	fetch  *fetcher
	logger *zap.Logger
}

// An Option can override some of the default Root values.
type Option func(*Root)

// WithClient allows one to override the default HTTP client.
// Timeouts are the responsibility of the client.
func WithClient(client *http.Client) Option {
	return func(root *Root) {
		root.fetch.client = client
	}
}

// WithBaseURL points the Root at another Graph endpoint,
// such as a national cloud or a test server.
func WithBaseURL(baseURL string) Option {
	return func(root *Root) {
		root.baseURL = baseURL
	}
}

// WithMaxPutSize sets the default single request threshold and chunk size of uploads.
func WithMaxPutSize(size int64) Option {
	return func(root *Root) {
		if size > 0 {
			root.defaults.MaxPutSize = size
		}
	}
}

// WithMaxGetSize sets the default size of the ranges requested by downloads.
func WithMaxGetSize(size int64) Option {
	return func(root *Root) {
		if size > 0 {
			root.defaults.MaxGetSize = size
		}
	}
}

// WithDriveDefaults sets the configuration every drive of the Root starts from.
// Zero fields keep the current defaults.
func WithDriveDefaults(config DriveConfig) Option {
	return func(root *Root) {
		root.defaults = root.defaults.merge(config)
	}
}

// WithMaxRetries sets how often throttled or failed requests are retried.
// Zero disables retries.
func WithMaxRetries(retries int) Option {
	return func(root *Root) {
		if retries >= 0 {
			root.fetch.maxRetries = retries
		}
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *zap.Logger) Option {
	return func(root *Root) {
		root.logger = logger
		root.fetch.logger = logger
	}
}

// New creates a new Root for the account.
func New(account Account, opts ...Option) *Root {
	const baseURL string = "https://graph.microsoft.com/v1.0"

	logger := zap.NewNop()

	fetch := &fetcher{
		auth: account,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
		sleep:      time.Sleep,
		maxRetries: defaultMaxRetries,
		logger:     logger,
	}

	root := &Root{
		account: account,
		baseURL: baseURL,
		defaults: DriveConfig{
			MaxGetSize: DefaultMaxGetSize,
			MaxPutSize: DefaultMaxPutSize,
		},
		now:    time.Now,
		fetch:  fetch,
		logger: logger,
	}

	for _, opt := range opts {
		opt(root)
	}

	return root
}

func (root *Root) Account() Account {
	return root.account
}
