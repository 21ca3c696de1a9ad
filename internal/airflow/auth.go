package airflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/dagpulse/dagpulse/internal/config"
)

// Credentials is the capability interface behind the three mutually
// exclusive authentication strategies: static bearer token, static basic
// credentials, and a session strategy that exchanges long-lived keys for a
// short-lived session cookie.
type Credentials interface {
	// Apply attaches authentication to an outgoing request.
	Apply(req *http.Request) error
	// Refreshable reports whether Refresh can obtain new credentials.
	Refreshable() bool
	// Refresh re-acquires credentials after an authorization failure.
	Refresh(ctx context.Context) error
}

// newCredentials selects the strategy from configuration presence. Zero or
// more than one configured strategy is a construction error.
func newCredentials(cfg config.AirflowConfig) (Credentials, error) {
	hasToken := cfg.APIToken != ""
	hasBasic := cfg.Username != "" || cfg.Password != ""
	hasSession := cfg.Session.TokenURL != "" || cfg.Session.AccessKey != "" || cfg.Session.SecretKey != ""

	configured := 0
	for _, set := range []bool{hasToken, hasBasic, hasSession} {
		if set {
			configured++
		}
	}
	if configured == 0 {
		return nil, errors.New("no authentication configured: set api_token, username/password, or session credentials")
	}
	if configured > 1 {
		return nil, errors.New("ambiguous authentication: api_token, username/password, and session credentials are mutually exclusive")
	}

	switch {
	case hasToken:
		return &tokenCredentials{token: cfg.APIToken}, nil
	case hasBasic:
		if cfg.Username == "" || cfg.Password == "" {
			return nil, errors.New("basic authentication requires both username and password")
		}
		return &basicCredentials{username: cfg.Username, password: cfg.Password}, nil
	default:
		if cfg.Session.TokenURL == "" || cfg.Session.AccessKey == "" || cfg.Session.SecretKey == "" {
			return nil, errors.New("session authentication requires token_url, access_key and secret_key")
		}
		return &sessionCredentials{cfg: cfg.Session, httpc: http.DefaultClient}, nil
	}
}

type tokenCredentials struct {
	token string
}

func (c *tokenCredentials) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	return nil
}

func (c *tokenCredentials) Refreshable() bool             { return false }
func (c *tokenCredentials) Refresh(context.Context) error { return nil }

type basicCredentials struct {
	username string
	password string
}

func (c *basicCredentials) Apply(req *http.Request) error {
	req.SetBasicAuth(c.username, c.password)
	return nil
}

func (c *basicCredentials) Refreshable() bool             { return false }
func (c *basicCredentials) Refresh(context.Context) error { return nil }

// sessionCredentials exchanges long-lived keys for a web token bound to a
// dynamically discovered webserver host, then logs in for a session cookie.
// The cookie is attached to every request; a refresh replaces it wholesale.
type sessionCredentials struct {
	cfg   config.SessionConfig
	httpc *http.Client

	mu     sync.Mutex
	cookie string
	host   string
}

func (c *sessionCredentials) Apply(req *http.Request) error {
	c.mu.Lock()
	cookie := c.cookie
	c.mu.Unlock()

	if cookie == "" {
		if err := c.Refresh(req.Context()); err != nil {
			return err
		}
		c.mu.Lock()
		cookie = c.cookie
		c.mu.Unlock()
	}
	req.Header.Set("Cookie", "session="+cookie)
	return nil
}

func (c *sessionCredentials) Refreshable() bool { return true }

func (c *sessionCredentials) Refresh(ctx context.Context) error {
	token, host, err := c.webToken(ctx)
	if err != nil {
		return errors.Wrap(err, "exchange credentials for web token")
	}
	cookie, err := c.login(ctx, host, token)
	if err != nil {
		return errors.Wrapf(err, "log in to %s", host)
	}

	c.mu.Lock()
	c.cookie = cookie
	c.host = host
	c.mu.Unlock()
	return nil
}

// Host returns the discovered webserver host, empty before the first refresh.
func (c *sessionCredentials) Host() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

func (c *sessionCredentials) webToken(ctx context.Context) (token, host string, err error) {
	body, err := json.Marshal(map[string]string{
		"access_key": c.cfg.AccessKey,
		"secret_key": c.cfg.SecretKey,
	})
	if err != nil {
		return "", "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		WebToken string `json:"web_token"`
		Hostname string `json:"webserver_hostname"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", "", errors.Wrap(err, "decode token response")
	}
	if payload.WebToken == "" || payload.Hostname == "" {
		return "", "", errors.New("token response missing web_token or webserver_hostname")
	}
	return payload.WebToken, payload.Hostname, nil
}

func (c *sessionCredentials) login(ctx context.Context, host, token string) (string, error) {
	form := url.Values{"token": {token}}
	loginURL := fmt.Sprintf("https://%s/aws_mwaa/login", host)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusFound {
		return "", fmt.Errorf("login returned %d", resp.StatusCode)
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == "session" && ck.Value != "" {
			return ck.Value, nil
		}
	}
	return "", errors.New("login response carried no session cookie")
}
