package zotero

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"shelfscan/internal/access"
	"shelfscan/internal/config"
	"shelfscan/internal/dispatch"
	"shelfscan/internal/records"
	"shelfscan/internal/services"
)

// Correlation identifiers of the requests this package issues.
const (
	IDPermissions   = "permissions"
	IDGroups        = "groups"
	IDAddItems      = "addItems"
	IDNewCollection = "newCollection"
)

// Request extras.
const (
	ExtraItemIDs = "item_ids"
	ExtraTarget  = "target"
	ExtraName    = "name"
)

const (
	headerAPIKey     = "Zotero-API-Key"
	headerAPIVersion = "Zotero-API-Version"
	headerWriteToken = "X-Zotero-Write-Token"
	apiVersion       = "3"
)

// Account identifies the remote user and the API key acting for them.
type Account struct {
	UserID string
	Key    access.KeyRef
}

// NewAccount builds an account from configuration. key carries the stored
// row id when the key has been saved locally.
func NewAccount(cfg config.Zotero, key access.KeyRef) (Account, error) {
	userID := strings.TrimSpace(cfg.UserID)
	if userID == "" {
		return Account{}, services.Wrap(services.ErrConfiguration, "zotero", "account", "user id required", nil)
	}
	if strings.TrimSpace(key.Key) == "" {
		key.Key = strings.TrimSpace(cfg.APIKey)
	}
	if key.Key == "" {
		return Account{}, services.Wrap(services.ErrConfiguration, "zotero", "account", "api key required", nil)
	}
	return Account{UserID: userID, Key: key}, nil
}

// Client builds remote library requests and hands them to the queue.
type Client struct {
	queue   dispatch.Enqueuer
	handler *dispatch.Handler
	baseURL string
	account Account
}

// New creates a client acting for account.
func New(cfg config.Zotero, account Account, queue dispatch.Enqueuer, handler *dispatch.Handler) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "zotero", "new client", "base url required", nil)
	}
	if queue == nil || handler == nil {
		return nil, services.Wrap(services.ErrConfiguration, "zotero", "new client", "queue and handler required", nil)
	}
	if account.UserID == "" || account.Key.Key == "" {
		return nil, services.Wrap(services.ErrConfiguration, "zotero", "new client", "account incomplete", nil)
	}
	return &Client{queue: queue, handler: handler, baseURL: baseURL, account: account}, nil
}

// Account returns the account the client acts for.
func (c *Client) Account() Account { return c.account }

func (c *Client) url(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// request builds an API v3 request. The key endpoint is the exception: it only
// answers with the XML access document when no version is requested.
func (c *Client) request(method dispatch.Method, target, correlation string) *dispatch.RequestBuilder {
	return c.unversioned(method, target, correlation).Header(headerAPIVersion, apiVersion)
}

func (c *Client) unversioned(method dispatch.Method, target, correlation string) *dispatch.RequestBuilder {
	return dispatch.NewRequest(method, target).
		Header(headerAPIKey, c.account.Key.Key).
		Correlation(correlation)
}

func (c *Client) enqueue(b *dispatch.RequestBuilder) (string, error) {
	req, err := b.Build()
	if err != nil {
		return "", err
	}
	if err := c.queue.Enqueue(req, c.handler); err != nil {
		return "", err
	}
	return req.ID(), nil
}

// GetPermissions requests the access descriptor of the account's key.
func (c *Client) GetPermissions() (string, error) {
	target := c.url("users", c.account.UserID, "keys", c.account.Key.Key)
	return c.enqueue(c.unversioned(dispatch.MethodGet, target, IDPermissions).
		Header("Accept", "application/xml"))
}

// GetGroups requests the groups the user belongs to.
func (c *Client) GetGroups() (string, error) {
	target := c.url("users", c.account.UserID, "groups") + "?format=json"
	return c.enqueue(c.request(dispatch.MethodGet, target, IDGroups))
}

// AddItems uploads recs to target. itemIDs are the local row ids of recs, in
// the same order; they come back in the upload result. The upload is refused
// before anything is enqueued when acc does not grant Write on target.
func (c *Client) AddItems(recs []records.Record, itemIDs []int64, target Target, acc access.Access) (string, error) {
	if !acc.CanWriteScope(target.Scope()) {
		return "", services.Wrap(services.ErrAuthorizationDenied, "zotero", "add items", "no write access to "+target.String(), nil)
	}
	if len(itemIDs) != len(recs) {
		return "", services.Wrap(services.ErrValidation, "zotero", "add items", "item ids do not match records", nil)
	}
	payload, err := records.UploadPayload(recs)
	if err != nil {
		return "", err
	}
	ids := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return c.enqueue(c.request(dispatch.MethodPost, c.baseURL+"/"+target.path(c.account.UserID)+"/items", IDAddItems).
		Header(headerWriteToken, WriteToken()).
		Body("application/json", payload).
		Extra(ExtraItemIDs, strings.Join(ids, ",")).
		Extra(ExtraTarget, target.String()))
}

type newCollection struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// NewCollection creates a collection named name in the personal library,
// optionally under the collection with key parent.
func (c *Client) NewCollection(name, parent string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", services.Wrap(services.ErrValidation, "zotero", "new collection", "name required", nil)
	}
	return c.enqueue(c.request(dispatch.MethodPost, c.url("users", c.account.UserID, "collections"), IDNewCollection).
		Header(headerWriteToken, WriteToken()).
		JSON(newCollection{Name: name, Parent: strings.TrimSpace(parent)}).
		Extra(ExtraName, name))
}

// WriteToken returns a fresh 32 hex character token that lets the server
// reject a replayed write.
func WriteToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func parseItemIDs(raw string) []int64 {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
