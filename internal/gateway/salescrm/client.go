package salescrm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"salesbridge-service/internal/pkg/cache"
	xerrors "salesbridge-service/internal/pkg/errors"
)

// Client talks to the sales cloud REST API. Reads that feed display
// text (program names) go through the cache; lead mutations never do.
type Client struct {
	baseURL  string
	auth     string
	http     *http.Client
	logger   *zap.Logger
	cache    *cache.Store
	cacheTTL time.Duration
}

func NewClient(baseURL, username, password string, store *cache.Store, cacheTTL time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		auth:     basicAuth(username, password),
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
		cache:    store,
		cacheTTL: cacheTTL,
	}
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// Lead is the subset of lead fields the service reads and writes.
type Lead struct {
	LeadID       string `json:"LeadId"`
	StatusCode   string `json:"StatusCode"`
	Observations string `json:"CTRObservacionesActiv_c"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sales crm api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return xerrors.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("sales crm api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return fmt.Errorf("sales crm api %s %s: status %d: %w", method, path, resp.StatusCode, xerrors.ErrGateway)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// queryItems runs a collection query and decodes the items array.
func (c *Client) queryItems(ctx context.Context, resource, q, fields string, out any) error {
	params := url.Values{}
	params.Set("onlyData", "true")
	params.Set("q", q)
	if fields != "" {
		params.Set("fields", fields)
	}
	params.Set("limit", "1")
	return c.do(ctx, http.MethodGet, "/"+resource+"?"+params.Encode(), nil, out)
}

// GetProgramName resolves a program code to its display name. Results
// are cached since catalog entries almost never change.
func (c *Client) GetProgramName(ctx context.Context, programCode string) (string, error) {
	return c.cache.Lookup(ctx, "salescrm:program:"+programCode, c.cacheTTL, func(ctx context.Context) (string, error) {
		var result struct {
			Items []struct {
				ProductGroupName string `json:"ProductGroupName"`
			} `json:"items"`
		}
		err := c.queryItems(ctx, "catalogProductGroups", "ProductGroupId="+programCode, "ProductGroupName", &result)
		if err != nil {
			return "", err
		}
		if len(result.Items) == 0 {
			return "", xerrors.ErrNotFound
		}
		return result.Items[0].ProductGroupName, nil
	})
}

// GetContactName looks a contact's display name up by document number.
func (c *Client) GetContactName(ctx context.Context, document string) (string, error) {
	var result struct {
		Items []struct {
			ContactName string `json:"ContactName"`
		} `json:"items"`
	}
	err := c.queryItems(ctx, "contacts", "PersonDEO_CTRNrodedocumento_c="+document, "ContactName", &result)
	if err != nil {
		return "", err
	}
	if len(result.Items) == 0 {
		return "", xerrors.ErrNotFound
	}
	return result.Items[0].ContactName, nil
}

// GetLead reads the mutable lead fields by lead number.
func (c *Client) GetLead(ctx context.Context, leadNumber string) (*Lead, error) {
	var result struct {
		Items []Lead `json:"items"`
	}
	err := c.queryItems(ctx, "leads", "LeadNumber="+leadNumber, "CTRObservacionesActiv_c,StatusCode,LeadId", &result)
	if err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, xerrors.ErrNotFound
	}
	return &result.Items[0], nil
}

// UpdateLead patches lead fields by internal lead id.
func (c *Client) UpdateLead(ctx context.Context, leadID string, fields map[string]any) error {
	params := url.Values{}
	params.Set("onlyData", "true")
	params.Set("fields", "StatusCode")
	return c.do(ctx, http.MethodPatch, "/leads/"+url.PathEscape(leadID)+"?"+params.Encode(), fields, nil)
}

// GetResourcePartyNumber maps a seller's party id to their party
// number via the resource directory.
func (c *Client) GetResourcePartyNumber(ctx context.Context, partyID int64) (int64, error) {
	var result struct {
		Items []struct {
			ResourcePartyNumber json.Number `json:"ResourcePartyNumber"`
		} `json:"items"`
	}
	err := c.queryItems(ctx, "resourceUsers", "ResourcePartyId="+strconv.FormatInt(partyID, 10), "", &result)
	if err != nil {
		return 0, err
	}
	if len(result.Items) == 0 {
		return 0, xerrors.ErrNotFound
	}
	n, err := result.Items[0].ResourcePartyNumber.Int64()
	if err != nil {
		return 0, fmt.Errorf("parse resource party number: %w", err)
	}
	return n, nil
}

// GetResourceEmail reads a seller's corporate mailbox by party number.
func (c *Client) GetResourceEmail(ctx context.Context, partyNumber int64) (string, error) {
	params := url.Values{}
	params.Set("onlyData", "true")
	params.Set("fields", "Username,ResourceEmail")
	path := "/resourceUsers/" + strconv.FormatInt(partyNumber, 10) + "?" + params.Encode()

	var result struct {
		ResourceEmail string `json:"ResourceEmail"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return "", err
	}
	return result.ResourceEmail, nil
}
