package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// APIError captures non-2xx responses from GitHub.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error: status=%d message=%s", e.StatusCode, e.Message)
}

// Client is a minimal GitHub API client for pull request lookups on one repository.
type Client struct {
	BaseURL    string
	Token      string
	Owner      string
	Repo       string
	HTTPClient *http.Client
	UserAgent  string
}

// NewClient constructs a GitHub client for repository in "owner/name" form.
// The token may be empty for public repositories.
func NewClient(token, repository string) (*Client, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repository), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("github repository %q must be owner/name", repository)
	}
	return &Client{
		BaseURL:    defaultBaseURL,
		Token:      token,
		Owner:      owner,
		Repo:       name,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		UserAgent:  "diffbase",
	}, nil
}

type pullRequest struct {
	Number int    `json:"number"`
	State  string `json:"state"`
	Head   struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

// PullRequestNumber returns the open pull request whose head is branch.
func (c *Client) PullRequestNumber(ctx context.Context, branch string) (int, bool, error) {
	if branch == "" {
		return 0, false, nil
	}
	query := url.Values{}
	query.Set("state", "open")
	query.Set("head", c.Owner+":"+branch)
	query.Set("per_page", "1")
	path := fmt.Sprintf("/repos/%s/%s/pulls?%s", c.Owner, c.Repo, query.Encode())

	var prs []pullRequest
	if err := c.doJSON(ctx, http.MethodGet, path, &prs); err != nil {
		return 0, false, err
	}
	if len(prs) == 0 || prs[0].Number <= 0 {
		return 0, false, nil
	}
	return prs[0].Number, true, nil
}

// PullRequestBaseBranch returns the branch a pull request targets.
func (c *Client) PullRequestBaseBranch(ctx context.Context, number int) (string, bool, error) {
	if number <= 0 {
		return "", false, nil
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", c.Owner, c.Repo, number)

	var pr pullRequest
	if err := c.doJSON(ctx, http.MethodGet, path, &pr); err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if pr.Base.Ref == "" {
		return "", false, nil
	}
	return pr.Base.Ref, true, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, out any) error {
	if c == nil {
		return errors.New("github client is nil")
	}

	base := strings.TrimRight(c.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, method, base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return err
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}
