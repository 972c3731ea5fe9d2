package backend

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"touradmin/pkg/config"
	"touradmin/pkg/credstore"
)

// Credentials is the credential carrier strategy. Exactly one is active per
// deployment and the pipeline does not care which.
type Credentials interface {
	Kind() string

	// Configure prepares the transport once, at client construction.
	Configure(hc *http.Client)

	// Attach runs before every dispatch.
	Attach(req *http.Request)

	// Save receives a token handed out by a credential exchange. Variants that
	// never see tokens ignore it.
	Save(token string) error
}

// BearerToken keeps an opaque token in the credential store.
type BearerToken struct {
	Store credstore.Store
}

func (b BearerToken) Kind() string { return config.CredentialsBearer }

func (b BearerToken) Configure(*http.Client) {}

func (b BearerToken) Attach(req *http.Request) {
	if b.Store == nil {
		return
	}
	if tok, ok := b.Store.Get(credstore.KeyToken); ok && strings.TrimSpace(tok) != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

func (b BearerToken) Save(token string) error {
	if b.Store == nil || strings.TrimSpace(token) == "" {
		return nil
	}
	return b.Store.Set(credstore.KeyToken, token)
}

// CookieSession leaves the credential to the transport: the server sets a cookie
// and the jar sends it back. Application code never reads or writes it.
type CookieSession struct {
	Jar http.CookieJar
}

func (c *CookieSession) Kind() string { return config.CredentialsCookie }

func (c *CookieSession) Configure(hc *http.Client) {
	if hc.Jar != nil {
		c.Jar = hc.Jar
		return
	}
	if c.Jar == nil {
		// cookiejar.New only fails on a bad PublicSuffixList; nil options have none.
		jar, err := cookiejar.New(nil)
		if err != nil {
			panic(err)
		}
		c.Jar = jar
	}
	hc.Jar = c.Jar
}

func (c *CookieSession) Attach(*http.Request) {}

func (c *CookieSession) Save(string) error { return nil }

func NewCredentials(kind string, store credstore.Store) (Credentials, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case config.CredentialsCookie, "":
		return &CookieSession{}, nil
	case config.CredentialsBearer:
		if store == nil {
			return nil, fmt.Errorf("bearer credentials need a credential store")
		}
		return BearerToken{Store: store}, nil
	default:
		return nil, fmt.Errorf("unsupported credential variant: %s", kind)
	}
}
