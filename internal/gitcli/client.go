// Package gitcli implements the git collaborator on top of the git binary.
package gitcli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/izavyalov-dev/diffbase/internal/observability"
)

const metadataCacheSize = 256

// ErrInvalidRef is returned for refs git would parse as options.
var ErrInvalidRef = errors.New("gitcli: invalid ref")

// Client answers repository questions for one working tree.
type Client struct {
	dir    string
	runner Runner
	logger *slog.Logger

	mu      sync.Mutex
	fetched bool

	authors *lru.Cache[string, string]
	dates   *lru.Cache[string, time.Time]
}

// Option configures a Client.
type Option func(*Client)

func WithRunner(runner Runner) Option {
	return func(c *Client) { c.runner = runner }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New constructs a Client rooted at dir ("" means the current directory).
func New(dir string, opts ...Option) (*Client, error) {
	authors, err := lru.New[string, string](metadataCacheSize)
	if err != nil {
		return nil, err
	}
	dates, err := lru.New[string, time.Time](metadataCacheSize)
	if err != nil {
		return nil, err
	}
	c := &Client{
		dir:     dir,
		runner:  ExecRunner{},
		authors: authors,
		dates:   dates,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = observability.NewLogger("gitcli")
	}
	return c, nil
}

// FetchRemotes fetches all remotes and tags. A successful fetch is not repeated
// for the lifetime of the client.
func (c *Client) FetchRemotes(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetched {
		c.logger.Debug("remote fetch skipped", "event", "remote_fetch_skipped")
		return nil
	}
	if _, err := c.runner.Run(ctx, c.dir, "fetch", "--all", "--tags", "--quiet"); err != nil {
		return err
	}
	c.fetched = true
	return nil
}

// ResolveFullSymbolicName returns the fully-qualified name of ref, such as
// "refs/remotes/origin/main". The boolean is false when ref is not symbolic.
func (c *Client) ResolveFullSymbolicName(ctx context.Context, ref string) (string, bool, error) {
	if !validRef(ref) {
		return "", false, nil
	}
	out, err := c.runner.Run(ctx, c.dir, "rev-parse", "--symbolic-full-name", ref)
	if err != nil {
		if isExitError(err) {
			return "", false, nil
		}
		return "", false, err
	}
	name := firstLine(out)
	if name == "" {
		return "", false, nil
	}
	return name, true, nil
}

// ResolveFullCommitHash returns the full object name of the commit ref points to.
func (c *Client) ResolveFullCommitHash(ctx context.Context, ref string) (string, error) {
	if !validRef(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	out, err := c.runner.Run(ctx, c.dir, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", err
	}
	hash := firstLine(out)
	if hash == "" {
		return "", fmt.Errorf("git rev-parse returned no hash for %q", ref)
	}
	return hash, nil
}

// RemoteNames lists the configured remotes.
func (c *Client) RemoteNames(ctx context.Context) ([]string, error) {
	out, err := c.runner.Run(ctx, c.dir, "remote")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// CommitAuthor returns the author name of commit.
func (c *Client) CommitAuthor(ctx context.Context, commit string) (string, error) {
	if author, ok := c.authors.Get(commit); ok {
		return author, nil
	}
	out, err := c.show(ctx, commit, "%an")
	if err != nil {
		return "", err
	}
	c.authors.Add(commit, out)
	return out, nil
}

// CommitDate returns the committer date of commit.
func (c *Client) CommitDate(ctx context.Context, commit string) (time.Time, error) {
	if date, ok := c.dates.Get(commit); ok {
		return date, nil
	}
	out, err := c.show(ctx, commit, "%cI")
	if err != nil {
		return time.Time{}, err
	}
	date, err := time.Parse(time.RFC3339, out)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse commit date %q: %w", out, err)
	}
	c.dates.Add(commit, date)
	return date, nil
}

func (c *Client) show(ctx context.Context, commit, format string) (string, error) {
	if !validRef(commit) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, commit)
	}
	out, err := c.runner.Run(ctx, c.dir, "log", "-1", "--format="+format, commit, "--")
	if err != nil {
		return "", err
	}
	return firstLine(out), nil
}

func validRef(ref string) bool {
	return ref != "" && !strings.HasPrefix(ref, "-")
}

func firstLine(out []byte) string {
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line)
}
