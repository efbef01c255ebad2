package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/izavyalov-dev/diffbase/protocol"
)

const (
	mainCommit    = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	releaseCommit = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	tagCommit     = "cccccccccccccccccccccccccccccccccccccccc"
	looseCommit   = "deadbeef1234deadbeef1234deadbeef12340000"
	featureCommit = "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
	ciCommit      = "ffffffffffffffffffffffffffffffffffffffff"
)

var commitDate = time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

type fakeGit struct {
	mu       sync.Mutex
	symbolic map[string]string
	hashes   map[string]string
	remotes  []string
	fetchErr error
	metaErr  error
	fetches  int
	calls    []string
}

// newFakeGit models a repository with origin, local main, master and feature branches,
// origin/release-1.2, origin/master, tag v2.0.1 and a loose commit deadbeef1234.
func newFakeGit() *fakeGit {
	return &fakeGit{
		symbolic: map[string]string{
			"HEAD":               "refs/heads/main",
			"main":               "refs/heads/main",
			"master":             "refs/heads/master",
			"feature/login":      "refs/heads/feature/login",
			"origin/release-1.2": "refs/remotes/origin/release-1.2",
			"origin/master":      "refs/remotes/origin/master",
			"v2.0.1":             "refs/tags/v2.0.1",
		},
		hashes: map[string]string{
			"refs/heads/main":                 mainCommit,
			"refs/heads/master":               mainCommit,
			"refs/heads/feature/login":        featureCommit,
			"refs/remotes/origin/release-1.2": releaseCommit,
			"refs/remotes/origin/master":      mainCommit,
			"refs/tags/v2.0.1":                tagCommit,
			"deadbeef1234":                    looseCommit,
		},
		remotes: []string{"origin"},
	}
}

func (g *fakeGit) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *fakeGit) FetchRemotes(ctx context.Context) error {
	g.record("fetch")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	return g.fetchErr
}

func (g *fakeGit) ResolveFullSymbolicName(ctx context.Context, ref string) (string, bool, error) {
	g.record("symbolic:" + ref)
	name, ok := g.symbolic[ref]
	return name, ok, nil
}

func (g *fakeGit) ResolveFullCommitHash(ctx context.Context, ref string) (string, error) {
	g.record("hash:" + ref)
	hash, ok := g.hashes[ref]
	if !ok {
		return "", fmt.Errorf("fatal: needed a single revision: %s", ref)
	}
	return hash, nil
}

func (g *fakeGit) RemoteNames(ctx context.Context) ([]string, error) {
	g.record("remotes")
	return g.remotes, nil
}

func (g *fakeGit) CommitAuthor(ctx context.Context, commit string) (string, error) {
	g.record("author:" + commit)
	if g.metaErr != nil {
		return "", g.metaErr
	}
	return "Ada", nil
}

func (g *fakeGit) CommitDate(ctx context.Context, commit string) (time.Time, error) {
	g.record("date:" + commit)
	if g.metaErr != nil {
		return time.Time{}, g.metaErr
	}
	return commitDate, nil
}

// failingGit fails the test path if any git call is made.
type failingGit struct{}

var errUnexpectedGit = errors.New("unexpected git call")

func (failingGit) FetchRemotes(context.Context) error { return errUnexpectedGit }
func (failingGit) ResolveFullSymbolicName(context.Context, string) (string, bool, error) {
	return "", false, errUnexpectedGit
}
func (failingGit) ResolveFullCommitHash(context.Context, string) (string, error) {
	return "", errUnexpectedGit
}
func (failingGit) RemoteNames(context.Context) ([]string, error) { return nil, errUnexpectedGit }
func (failingGit) CommitAuthor(context.Context, string) (string, error) {
	return "", errUnexpectedGit
}
func (failingGit) CommitDate(context.Context, string) (time.Time, error) {
	return time.Time{}, errUnexpectedGit
}

type fakePRs struct {
	numbers      map[string]int
	baseBranches map[int]string
	err          error
	numberCalls  []string
	baseCalls    []int
}

func (p *fakePRs) PullRequestNumber(ctx context.Context, branch string) (int, bool, error) {
	p.numberCalls = append(p.numberCalls, branch)
	if p.err != nil {
		return 0, false, p.err
	}
	n, ok := p.numbers[branch]
	return n, ok, nil
}

func (p *fakePRs) PullRequestBaseBranch(ctx context.Context, number int) (string, bool, error) {
	p.baseCalls = append(p.baseCalls, number)
	if p.err != nil {
		return "", false, p.err
	}
	b, ok := p.baseBranches[number]
	return b, ok, nil
}

type fakeFS map[string]bool

func (f fakeFS) Exists(path string) bool { return f[path] }

type recordingSink struct {
	operations []string
	bases      []protocol.DiffBase
	err        error
}

func (s *recordingSink) Record(ctx context.Context, operation string, base protocol.DiffBase) error {
	s.operations = append(s.operations, operation)
	s.bases = append(s.bases, base)
	return s.err
}
