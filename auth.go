package onedrived

import (
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

type tokenSource struct {
	ts oauth2.TokenSource
}

// TokenSource turns an oauth2.TokenSource into an Authenticator.
// The token source is expected to refresh tokens itself, as the one returned
// by oauth2.Config.TokenSource does.
func TokenSource(ts oauth2.TokenSource) Authenticator {
	return &tokenSource{ts: ts}
}

func (auth *tokenSource) AccessToken() (string, int64, error) {
	token, err := auth.ts.Token()
	if err != nil {
		return "", 0, fmt.Errorf("%v: %w", err, ErrInvalidCredentials)
	}

	return token.AccessToken, token.Expiry.Unix(), nil
}

type staticAccount struct {
	Authenticator
	id  string
	typ AccountType
}

func (a *staticAccount) ID() string {
	return a.id
}

func (a *staticAccount) Type() AccountType {
	return a.typ
}

// StaticAccount gives an Authenticator a fixed identity.
func StaticAccount(id string, typ AccountType, auth Authenticator) Account {
	return &staticAccount{Authenticator: auth, id: id, typ: typ}
}

// AccountStore looks up registered accounts.
// Unknown accounts result in ErrAccountNotFound.
type AccountStore interface {
	Account(id string, typ AccountType) (Account, error)
}

type accountKey struct {
	id  string
	typ AccountType
}

// Accounts is an in-memory AccountStore.
type Accounts struct {
	mu       sync.RWMutex
	accounts map[accountKey]Account
}

func NewAccounts(accounts ...Account) *Accounts {
	store := &Accounts{accounts: make(map[accountKey]Account)}
	for _, account := range accounts {
		store.Add(account)
	}

	return store
}

func (store *Accounts) Add(account Account) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.accounts[accountKey{account.ID(), account.Type()}] = account
}

func (store *Accounts) Account(id string, typ AccountType) (Account, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	account, ok := store.accounts[accountKey{id, typ}]
	if !ok {
		return nil, fmt.Errorf("%v account %v: %w", typ, id, ErrAccountNotFound)
	}

	return account, nil
}
