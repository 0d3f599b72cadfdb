// Package coros provides a client for the COROS Training Center private web
// API: authentication, activity listing, and activity file transfers.
package coros

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	apperrors "github.com/dlenski/corostc/pkg/coros/errors"
)

// DefaultBaseURL is the fixed vendor API origin.
const DefaultBaseURL = "https://teamapi.coros.com"

// resultOK is the vendor's success sentinel in the response envelope.
const resultOK = "0000"

// FITParser recovers the session start time from raw FIT bytes. It is an
// optional collaborator: a nil parser degrades upload-identity resolution
// to a no-op, never a failure.
type FITParser interface {
	SessionStartTime(data []byte) (time.Time, error)
}

// Config configures a Client. Either AccessToken or Username+Password must
// be set before Connect.
type Config struct {
	// BaseURL overrides the vendor API origin, mainly for tests.
	BaseURL string

	Username string
	Password string

	// AccessToken is a pre-existing token (or CPL-coros-token cookie value).
	// Connect tries it first and falls back to password login if it is
	// rejected.
	AccessToken string

	// HTTPClient lets the caller inject timeouts or transport policy.
	HTTPClient *http.Client

	// Logger receives page-fetch traces and fallback warnings. Defaults to
	// logr.Discard().
	Logger *logr.Logger

	// FITParser enables upload-identity correlation.
	FITParser FITParser
}

// Client is one authenticated session against the COROS API. It is not safe
// for use by multiple API identities; all operations are synchronous.
type Client struct {
	baseURL     string
	username    string
	password    string
	accessToken string

	userID   string
	nickname string

	httpClient *http.Client
	connected  bool
	logger     logr.Logger
	fitParser  FITParser
}

// NewClient creates an unconnected Client from cfg.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := logr.Discard()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		username:    cfg.Username,
		password:    cfg.Password,
		accessToken: cfg.AccessToken,
		httpClient:  httpClient,
		logger:      logger,
		fitParser:   cfg.FITParser,
	}
}

// UserID returns the authenticated user identifier (empty before Connect).
func (c *Client) UserID() string { return c.userID }

// Nickname returns the authenticated user's display name (empty before Connect).
func (c *Client) Nickname() string { return c.nickname }

// Username returns the account email, adopted from the identity response
// when no username was supplied.
func (c *Client) Username() string { return c.username }

// Connect authenticates the session. A supplied access token is tried first
// via the identity-query endpoint; if the vendor rejects it, the token is
// discarded and password login is attempted.
func (c *Client) Connect(ctx context.Context) error {
	if c.accessToken != "" {
		err := c.authenticateWithToken(ctx)
		if err == nil {
			c.connected = true
			return nil
		}
		c.logger.Info("access token rejected, falling back to password login", "error", err.Error())
		c.accessToken = ""
	}

	if c.username == "" || c.password == "" {
		return apperrors.New(apperrors.ErrCodeAuthFailed,
			"no usable access token and no username/password supplied", nil)
	}
	if err := c.authenticateWithPassword(ctx); err != nil {
		return err
	}
	c.connected = true
	return nil
}

// Disconnect releases the connection context. Idempotent.
func (c *Client) Disconnect() {
	if !c.connected {
		return
	}
	c.httpClient.CloseIdleConnections()
	c.connected = false
}

type accountData struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	Nickname    string `json:"nickname"`
	Email       string `json:"email"`
}

func (c *Client) authenticateWithToken(ctx context.Context) error {
	data, err := c.get(ctx, "/account/query", nil)
	if err != nil {
		return err
	}
	return c.adoptIdentity(data)
}

func (c *Client) authenticateWithPassword(ctx context.Context) error {
	sum := md5.Sum([]byte(c.password))
	body := map[string]any{
		"account":     c.username,
		"pwd":         hex.EncodeToString(sum[:]),
		"accountType": 2,
	}
	data, err := c.postJSON(ctx, "/account/login", body)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeAuthFailed, "login failed", err)
	}
	return c.adoptIdentity(data)
}

// adoptIdentity extracts token and identity from an account envelope's data.
func (c *Client) adoptIdentity(data json.RawMessage) error {
	var acct accountData
	if err := json.Unmarshal(data, &acct); err != nil {
		return apperrors.New(apperrors.ErrCodeAuthFailed, "malformed account response", err)
	}
	if acct.AccessToken != "" {
		c.accessToken = acct.AccessToken
	}
	if c.accessToken == "" {
		return apperrors.New(apperrors.ErrCodeAuthFailed, "account response carried no access token", nil)
	}
	c.userID = acct.UserID
	c.nickname = acct.Nickname

	if c.username == "" {
		c.username = acct.Email
	} else if !strings.EqualFold(c.username, acct.Email) {
		return apperrors.New(apperrors.ErrCodeAuthFailed,
			fmt.Sprintf("authenticated as %q but username %q was supplied", acct.Email, c.username), nil)
	}
	return nil
}

// envelope is the vendor's uniform response wrapper.
type envelope struct {
	Result  string          `json:"result"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// checkEnvelope raises a transport error on a non-2xx status, then requires
// the success sentinel and returns the envelope's data sub-object.
func checkEnvelope(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.New(apperrors.ErrCodeTransportFailed,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)), nil)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeAPIError, "failed to decode response envelope", err)
	}
	if env.Result != resultOK {
		return nil, apperrors.NewAPIError(env.Result, env.Message)
	}
	return env.Data, nil
}

func (c *Client) addAuthHeaders(req *http.Request) {
	if c.accessToken != "" {
		// The vendor reads the raw token from an accessToken header, not
		// an Authorization: Bearer one.
		req.Header.Set("accessToken", c.accessToken)
	}
}

// do sends req with auth headers and normalizes the response envelope.
func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	c.addAuthHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeTransportFailed, "failed to send request", err)
	}
	return checkEnvelope(resp)
}

func (c *Client) get(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "failed to create request", err)
	}
	if len(params) > 0 {
		q := req.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "failed to marshal request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}
