// Package posapi is the register's HTTP client for the festpos API. It is the
// Remote the local store replays sale writes to, and the source of the catalog
// and the signed-in user.
package posapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/festpos/internal/cart"
	"github.com/angelmondragon/festpos/pkg/auth"
	"github.com/angelmondragon/festpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/localstore"
	"github.com/angelmondragon/festpos/pkg/types"
)

const (
	salesCollection = "sales"

	defaultTimeout         = 10 * time.Second
	responseBodyReadLimit int64 = 4096
)

var (
	errBaseURLRequired = errors.New("api base url is required")
	errTokenRequired   = errors.New("api token is required")
)

// Client talks to the festpos API with a register bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, errBaseURLRequired
	}
	trimmedToken := strings.TrimSpace(token)
	if trimmedToken == "" {
		return nil, errTokenRequired
	}

	client := &Client{
		baseURL:    trimmedURL,
		token:      trimmedToken,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type saleBody struct {
	Type  enums.SaleType  `json:"type"`
	Items types.SaleItems `json:"items"`
	Total int64           `json:"total"`
}

// Push writes one queued document to the API. Only the sales collection is
// served; anything else is rejected permanently.
func (c *Client) Push(ctx context.Context, doc localstore.Document) error {
	if doc.Collection != salesCollection {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("collection %q is not served", doc.Collection))
	}
	if strings.TrimSpace(doc.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "document id is required")
	}

	var body saleBody
	if err := json.Unmarshal(doc.Data, &body); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode sale document")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "marshal sale body")
	}

	path := "api/v1/sales/" + url.PathEscape(doc.ID)
	return c.do(ctx, http.MethodPut, path, payload, nil)
}

// ListProducts fetches the catalog.
func (c *Client) ListProducts(ctx context.Context) ([]cart.Product, error) {
	var products []cart.Product
	if err := c.do(ctx, http.MethodGet, "api/v1/products", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// Profile is the API's view of the signed-in user.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Verified    bool   `json:"verified"`
}

// Me fetches the signed-in user's profile, creating it server-side on first use.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := c.do(ctx, http.MethodGet, "api/v1/me", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// CurrentUserID reads the user id out of the register token without a round
// trip, so checkout keeps working offline. The API still verifies the
// signature; an expired token signs the user out here so no sale is taken
// that the API would refuse.
func (c *Client) CurrentUserID(context.Context) (string, bool) {
	claims := &auth.AccessTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return "", false
	}
	if claims.UserID == uuid.Nil {
		return "", false
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(time.Now()) {
		return "", false
	}
	return claims.UserID.String(), true
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build api request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute api request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var envelope types.Envelope[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode api response")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode api response data")
	}
	return nil
}

// decodeError maps an API error response onto a coded error. The status code
// decides retryability; the envelope only refines the code and message.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	code := pkgerrors.CodeForStatus(resp.StatusCode)
	msg := fmt.Sprintf("api responded %d", resp.StatusCode)

	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
		candidate := pkgerrors.Code(envelope.Error.Code)
		if pkgerrors.MetadataFor(candidate).HTTPStatus == resp.StatusCode {
			code = candidate
		}
		if envelope.Error.Message != "" {
			msg = envelope.Error.Message
		}
	} else if text := strings.TrimSpace(string(raw)); text != "" {
		msg = fmt.Sprintf("%s: %s", msg, text)
	}
	return pkgerrors.New(code, msg)
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}
