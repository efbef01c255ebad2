package ci

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFromEnvironGeneric(t *testing.T) {
	c, err := FromEnviron([]string{
		"IN_CI=true",
		"CI_BRANCH=main",
		"CI_PR_NUMBER=42",
		"CI_PR_BRANCH=feature/x",
		"CI_PR_HEAD_COMMIT=aaaa",
		"CI_COMMIT=bbbb",
		"CI_PR_BASE_BRANCH=release",
		"MALFORMED",
	})
	if err != nil {
		t.Fatalf("from environ: %v", err)
	}
	if c.Provider != ProviderGeneric || !c.InCI {
		t.Fatalf("unexpected provider %q in_ci=%v", c.Provider, c.InCI)
	}
	if c.PRNumber != 42 || c.PRBranch != "feature/x" || c.PRHeadCommit != "aaaa" || c.Commit != "bbbb" {
		t.Fatalf("unexpected context %+v", c)
	}
	if c.BaseBranch != "release" {
		t.Fatalf("unexpected base branch %q", c.BaseBranch)
	}
}

func TestFromEnvironInvalidPRNumber(t *testing.T) {
	_, err := FromEnviron([]string{"CI_COMMIT=abc", "CI_PR_NUMBER=twelve"})
	if !errors.Is(err, ErrInvalidPRNumber) {
		t.Fatalf("expected ErrInvalidPRNumber, got %v", err)
	}
}

func TestFromEnvironTravis(t *testing.T) {
	c, err := FromEnviron([]string{
		"TRAVIS=true",
		"TRAVIS_BRANCH=master",
		"TRAVIS_PULL_REQUEST=7",
		"TRAVIS_PULL_REQUEST_BRANCH=fix-typo",
		"TRAVIS_PULL_REQUEST_SHA=cccc",
		"TRAVIS_COMMIT=dddd",
	})
	if err != nil {
		t.Fatalf("from environ: %v", err)
	}
	if c.Provider != ProviderTravis || !c.InCI {
		t.Fatalf("unexpected provider %q", c.Provider)
	}
	if c.PRNumber != 7 || c.PRBranch != "fix-typo" || c.BaseBranch != "master" {
		t.Fatalf("unexpected context %+v", c)
	}

	c, err = FromEnviron([]string{"TRAVIS=true", "TRAVIS_BRANCH=master", "TRAVIS_PULL_REQUEST=false", "TRAVIS_COMMIT=dddd"})
	if err != nil {
		t.Fatalf("from environ: %v", err)
	}
	if c.HasPullRequest() || c.BaseBranch != "" {
		t.Fatalf("expected push build, got %+v", c)
	}
}

func TestFromEnvironFalseInCIDoesNotHideProvider(t *testing.T) {
	c, err := FromEnviron([]string{
		"IN_CI=false",
		"TRAVIS=true",
		"TRAVIS_BRANCH=main",
		"TRAVIS_PULL_REQUEST=false",
		"TRAVIS_COMMIT=dddd",
	})
	if err != nil {
		t.Fatalf("from environ: %v", err)
	}
	if c.Provider != ProviderTravis || c.Branch != "main" || c.Commit != "dddd" {
		t.Fatalf("expected travis context, got %+v", c)
	}
}

func TestFromEnvironGitHubTag(t *testing.T) {
	c, err := FromEnviron([]string{
		"GITHUB_ACTIONS=true",
		"GITHUB_SHA=eeee",
		"GITHUB_REF=refs/tags/v1.2.0",
		"GITHUB_REF_NAME=v1.2.0",
		"GITHUB_REF_TYPE=tag",
	})
	if err != nil {
		t.Fatalf("from environ: %v", err)
	}
	if c.Tag != "v1.2.0" || c.Branch != "" || c.Commit != "eeee" {
		t.Fatalf("unexpected context %+v", c)
	}
}

func TestLoadGitHubPullRequestEvent(t *testing.T) {
	dir := t.TempDir()
	eventPath := filepath.Join(dir, "event.json")
	payload := `{"number":31,"pull_request":{"head":{"ref":"feature/y","sha":"ffff"},"base":{"ref":"main"}},"repository":{"full_name":"acme/widgets"}}`
	if err := os.WriteFile(eventPath, []byte(payload), 0o600); err != nil {
		t.Fatalf("write event: %v", err)
	}

	c, err := Load([]string{
		"GITHUB_ACTIONS=true",
		"GITHUB_EVENT_NAME=pull_request",
		"GITHUB_EVENT_PATH=" + eventPath,
		"GITHUB_SHA=1111",
		"GITHUB_REF=refs/pull/31/merge",
		"GITHUB_HEAD_REF=feature/y",
		"GITHUB_BASE_REF=main",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.PRNumber != 31 || c.PRHeadCommit != "ffff" || c.PRBranch != "feature/y" || c.BaseBranch != "main" {
		t.Fatalf("unexpected context %+v", c)
	}
	if c.Commit != "1111" {
		t.Fatalf("expected merge commit kept as job commit, got %q", c.Commit)
	}
}

func TestLoadMissingEventFile(t *testing.T) {
	c, err := Load([]string{
		"GITHUB_ACTIONS=true",
		"GITHUB_EVENT_NAME=pull_request",
		"GITHUB_EVENT_PATH=" + filepath.Join(t.TempDir(), "missing.json"),
		"GITHUB_REF=refs/pull/8/merge",
		"GITHUB_HEAD_REF=topic",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.PRNumber != 8 || c.PRHeadCommit != "" {
		t.Fatalf("unexpected context %+v", c)
	}
}

func TestFromEnvironOutsideCI(t *testing.T) {
	c, err := FromEnviron([]string{"HOME=/root", "PATH=/usr/bin"})
	if err != nil {
		t.Fatalf("from environ: %v", err)
	}
	if c.Provider != ProviderNone || c.InCI {
		t.Fatalf("expected empty context, got %+v", c)
	}
}
