// Package wiki is a small client for the Confluence REST API (v1).
package wiki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const contentPath = "/rest/api/content"

// pageSize is the limit used when listing a space.
const pageSize = 100

// Client communicates with the Confluence HTTP API.
type Client struct {
	baseURL    string
	username   string
	apiToken   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client authenticating with username and API token.
func NewClient(baseURL, username, apiToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Page is the subset of a Confluence content object the publisher uses.
type Page struct {
	ID      string
	Title   string
	Version int
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Body)
}

type content struct {
	ID        string     `json:"id,omitempty"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Space     *spaceRef  `json:"space,omitempty"`
	Version   *version   `json:"version,omitempty"`
	Ancestors []ancestor `json:"ancestors,omitempty"`
	Body      *body      `json:"body,omitempty"`
}

type spaceRef struct {
	Key string `json:"key"`
}

type version struct {
	Number int `json:"number"`
}

type ancestor struct {
	ID string `json:"id"`
}

type body struct {
	Storage storage `json:"storage"`
}

type storage struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

type contentList struct {
	Results []content `json:"results"`
	Size    int       `json:"size"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

func (c content) page() Page {
	p := Page{ID: c.ID, Title: c.Title}
	if c.Version != nil {
		p.Version = c.Version.Number
	}
	return p
}

// do sends a request and decodes a JSON response into out when out is non-nil.
// Status codes other than those in accept produce a *StatusError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, reqBody io.Reader, contentType string, out any, accept ...int) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.SetBasicAuth(c.username, c.apiToken)
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if strings.Contains(path, "/child/attachment") {
		httpReq.Header.Set("X-Atlassian-Token", "no-check")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range accept {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", op, err)
		}
	}
	return nil
}

// FindPage looks up a page by exact title. It returns nil when none exists.
func (c *Client) FindPage(ctx context.Context, spaceKey, title string) (*Page, error) {
	q := url.Values{}
	q.Set("spaceKey", spaceKey)
	q.Set("title", title)
	q.Set("type", "page")
	q.Set("expand", "version")

	var list contentList
	if err := c.do(ctx, "find page", http.MethodGet, contentPath, q, nil, "", &list, http.StatusOK); err != nil {
		return nil, err
	}
	for _, r := range list.Results {
		if r.Title == title {
			p := r.page()
			return &p, nil
		}
	}
	return nil, nil
}

// CreatePage creates a page with a storage-format body, optionally below parentID.
func (c *Client) CreatePage(ctx context.Context, spaceKey, title, parentID, storageBody string) (*Page, error) {
	req := content{
		Type:  "page",
		Title: title,
		Space: &spaceRef{Key: spaceKey},
		Body:  &body{Storage: storage{Value: storageBody, Representation: "storage"}},
	}
	if parentID != "" {
		req.Ancestors = []ancestor{{ID: parentID}}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal page: %w", err)
	}

	var created content
	if err := c.do(ctx, "create page", http.MethodPost, contentPath, nil, bytes.NewReader(data), "application/json", &created, http.StatusOK, http.StatusCreated); err != nil {
		return nil, err
	}
	p := created.page()
	return &p, nil
}

// UpdatePage replaces the body of an existing page, bumping its version.
func (c *Client) UpdatePage(ctx context.Context, page Page, storageBody string) (*Page, error) {
	req := content{
		ID:      page.ID,
		Type:    "page",
		Title:   page.Title,
		Version: &version{Number: page.Version + 1},
		Body:    &body{Storage: storage{Value: storageBody, Representation: "storage"}},
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal page: %w", err)
	}

	var updated content
	if err := c.do(ctx, "update page", http.MethodPut, contentPath+"/"+url.PathEscape(page.ID), nil, bytes.NewReader(data), "application/json", &updated, http.StatusOK); err != nil {
		return nil, err
	}
	p := updated.page()
	return &p, nil
}

// ListPages returns every page in the space whose title starts with prefix.
func (c *Client) ListPages(ctx context.Context, spaceKey, prefix string) ([]Page, error) {
	var pages []Page
	for start := 0; ; start += pageSize {
		q := url.Values{}
		q.Set("spaceKey", spaceKey)
		q.Set("type", "page")
		q.Set("start", strconv.Itoa(start))
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("expand", "version")

		var list contentList
		if err := c.do(ctx, "list pages", http.MethodGet, contentPath, q, nil, "", &list, http.StatusOK); err != nil {
			return nil, err
		}
		for _, r := range list.Results {
			if strings.HasPrefix(r.Title, prefix) {
				pages = append(pages, r.page())
			}
		}
		if len(list.Results) < pageSize || list.Links.Next == "" {
			return pages, nil
		}
	}
}

// DeletePage deletes a page. Deleting a page that no longer exists is not an error.
func (c *Client) DeletePage(ctx context.Context, id string) error {
	err := c.do(ctx, "delete page", http.MethodDelete, contentPath+"/"+url.PathEscape(id), nil, nil, "", nil, http.StatusOK, http.StatusNoContent)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil
	}
	return err
}

// AttachFile creates or updates the attachment called name on a page.
func (c *Client) AttachFile(ctx context.Context, pageID, name, contentType string, r io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("read attachment %s: %w", name, err)
	}
	if err := mw.WriteField("minorEdit", "true"); err != nil {
		return fmt.Errorf("write multipart field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	path := contentPath + "/" + url.PathEscape(pageID) + "/child/attachment"
	return c.do(ctx, "attach "+name, http.MethodPut, path, nil, &buf, mw.FormDataContentType(), nil, http.StatusOK, http.StatusCreated)
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
