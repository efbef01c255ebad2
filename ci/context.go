// Package ci reads the identity of the current continuous-integration job.
package ci

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/izavyalov-dev/diffbase/internal/vcs/github"
)

const (
	ProviderNone    = ""
	ProviderGeneric = "generic"
	ProviderTravis  = "travis"
	ProviderGitHub  = "github"
)

// ErrInvalidPRNumber is returned when a pull request number signal is not numeric.
var ErrInvalidPRNumber = errors.New("ci: invalid pull request number")

// Context is the normalized set of CI signals. It is built once at process
// start and passed to the resolver.
type Context struct {
	Provider string
	InCI     bool

	Branch       string
	Tag          string
	Commit       string
	PRNumber     int
	PRBranch     string
	PRHeadCommit string
	// BaseBranch is the target branch of the pull request when the CI system reports it.
	BaseBranch string

	eventName string
	eventPath string
}

// HasPullRequest reports whether the job builds a pull request.
func (c Context) HasPullRequest() bool {
	return c.PRNumber > 0
}

// Load builds a Context from environ and, under GitHub Actions, the event
// payload referenced by GITHUB_EVENT_PATH.
func Load(environ []string) (Context, error) {
	c, err := FromEnviron(environ)
	if err != nil {
		return Context{}, err
	}
	if c.Provider != ProviderGitHub || c.eventPath == "" {
		return c, nil
	}
	payload, err := os.ReadFile(c.eventPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return Context{}, fmt.Errorf("read github event payload: %w", err)
	}
	if err := c.ApplyGitHubEvent(payload); err != nil {
		return Context{}, err
	}
	return c, nil
}

// FromEnviron maps an environ slice ("KEY=VALUE") onto a Context. The generic
// CI_* signals take precedence over provider-specific ones.
func FromEnviron(environ []string) (Context, error) {
	env := parseEnviron(environ)
	switch {
	case env.has("CI_COMMIT", "CI_PR_HEAD_COMMIT") || truthy(env["IN_CI"]):
		return fromGeneric(env)
	case truthy(env["TRAVIS"]):
		return fromTravis(env)
	case truthy(env["GITHUB_ACTIONS"]):
		return fromGitHub(env)
	default:
		return Context{}, nil
	}
}

func fromGeneric(env environ) (Context, error) {
	pr, err := parsePRNumber(env["CI_PR_NUMBER"])
	if err != nil {
		return Context{}, err
	}
	return Context{
		Provider:     ProviderGeneric,
		InCI:         truthy(env["IN_CI"]),
		Branch:       env["CI_BRANCH"],
		Tag:          env["CI_TAG"],
		Commit:       env["CI_COMMIT"],
		PRNumber:     pr,
		PRBranch:     env["CI_PR_BRANCH"],
		PRHeadCommit: env["CI_PR_HEAD_COMMIT"],
		BaseBranch:   env["CI_PR_BASE_BRANCH"],
	}, nil
}

func fromTravis(env environ) (Context, error) {
	pr, err := parsePRNumber(env["TRAVIS_PULL_REQUEST"])
	if err != nil {
		return Context{}, err
	}
	c := Context{
		Provider:     ProviderTravis,
		InCI:         true,
		Branch:       env["TRAVIS_BRANCH"],
		Tag:          env["TRAVIS_TAG"],
		Commit:       env["TRAVIS_COMMIT"],
		PRNumber:     pr,
		PRBranch:     env["TRAVIS_PULL_REQUEST_BRANCH"],
		PRHeadCommit: env["TRAVIS_PULL_REQUEST_SHA"],
	}
	// Travis reports the target branch as TRAVIS_BRANCH on pull request builds.
	if pr > 0 {
		c.BaseBranch = env["TRAVIS_BRANCH"]
	}
	return c, nil
}

func fromGitHub(env environ) (Context, error) {
	c := Context{
		Provider:  ProviderGitHub,
		InCI:      true,
		Commit:    env["GITHUB_SHA"],
		eventName: env["GITHUB_EVENT_NAME"],
		eventPath: env["GITHUB_EVENT_PATH"],
	}

	if head := env["GITHUB_HEAD_REF"]; head != "" {
		c.PRBranch = head
		c.BaseBranch = env["GITHUB_BASE_REF"]
		pr, err := prNumberFromRef(env["GITHUB_REF"])
		if err != nil {
			return Context{}, err
		}
		c.PRNumber = pr
		return c, nil
	}

	switch env["GITHUB_REF_TYPE"] {
	case "tag":
		c.Tag = env["GITHUB_REF_NAME"]
	default:
		c.Branch = env["GITHUB_REF_NAME"]
	}
	return c, nil
}

// ApplyGitHubEvent fills pull request details from a GitHub Actions event payload.
func (c *Context) ApplyGitHubEvent(payload []byte) error {
	evt, ok, err := github.NormalizeEvent(c.eventName, payload)
	if err != nil {
		return fmt.Errorf("normalize github event: %w", err)
	}
	if !ok || evt.PRNumber == nil {
		return nil
	}
	c.PRNumber = *evt.PRNumber
	c.PRHeadCommit = evt.CommitSHA
	if evt.HeadRef != "" {
		c.PRBranch = evt.HeadRef
	}
	if evt.BaseRef != "" {
		c.BaseBranch = evt.BaseRef
	}
	return nil
}

// prNumberFromRef extracts N from "refs/pull/N/merge".
func prNumberFromRef(ref string) (int, error) {
	rest, ok := strings.CutPrefix(ref, "refs/pull/")
	if !ok {
		return 0, nil
	}
	number, _, _ := strings.Cut(rest, "/")
	return parsePRNumber(number)
}

func parsePRNumber(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "false" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPRNumber, value)
	}
	return n, nil
}

func truthy(value string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && b
}

type environ map[string]string

func (e environ) has(keys ...string) bool {
	for _, key := range keys {
		if e[key] != "" {
			return true
		}
	}
	return false
}

// parseEnviron splits on the first "=" only; values may contain "=".
func parseEnviron(entries []string) environ {
	env := make(environ, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		env[key] = value
	}
	return env
}
