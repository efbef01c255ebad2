package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	EventPush        = "push"
	EventPullRequest = "pull_request"
)

// Event captures the fields of a GitHub event payload that identify a build.
type Event struct {
	EventType string
	RepoOwner string
	RepoName  string
	Ref       string
	CommitSHA string
	PRNumber  *int
	HeadRef   string
	BaseRef   string
}

// NormalizeEvent parses a GitHub event payload, as delivered by webhooks or
// written to GITHUB_EVENT_PATH by Actions. The boolean result is false for
// event types that do not identify a commit.
func NormalizeEvent(eventType string, body []byte) (Event, bool, error) {
	switch eventType {
	case EventPush:
		return normalizePush(body)
	case EventPullRequest, "pull_request_target":
		return normalizePullRequest(body)
	default:
		return Event{}, false, nil
	}
}

type repoRef struct {
	FullName string `json:"full_name"`
	Name     string `json:"name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type pushEvent struct {
	Ref        string  `json:"ref"`
	After      string  `json:"after"`
	Deleted    bool    `json:"deleted"`
	Repository repoRef `json:"repository"`
}

func normalizePush(body []byte) (Event, bool, error) {
	var evt pushEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, false, fmt.Errorf("decode push event: %w", err)
	}
	if evt.Deleted || evt.After == "" || evt.Ref == "" {
		return Event{}, false, nil
	}
	owner, name := normalizeRepo(evt.Repository)
	return Event{
		EventType: EventPush,
		RepoOwner: owner,
		RepoName:  name,
		Ref:       evt.Ref,
		CommitSHA: evt.After,
	}, true, nil
}

type pullRequestEvent struct {
	Number      int `json:"number"`
	PullRequest struct {
		Head struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
	Repository repoRef `json:"repository"`
}

func normalizePullRequest(body []byte) (Event, bool, error) {
	var evt pullRequestEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, false, fmt.Errorf("decode pull_request event: %w", err)
	}
	if evt.Number <= 0 || evt.PullRequest.Head.SHA == "" {
		return Event{}, false, errors.New("pull_request event missing number or head sha")
	}
	owner, name := normalizeRepo(evt.Repository)
	prNumber := evt.Number
	return Event{
		EventType: EventPullRequest,
		RepoOwner: owner,
		RepoName:  name,
		Ref:       fmt.Sprintf("refs/pull/%d/head", evt.Number),
		CommitSHA: evt.PullRequest.Head.SHA,
		PRNumber:  &prNumber,
		HeadRef:   evt.PullRequest.Head.Ref,
		BaseRef:   evt.PullRequest.Base.Ref,
	}, true, nil
}

func normalizeRepo(repo repoRef) (owner string, name string) {
	owner = strings.TrimSpace(repo.Owner.Login)
	name = strings.TrimSpace(repo.Name)
	if owner != "" && name != "" {
		return owner, name
	}
	if full := strings.TrimSpace(repo.FullName); full != "" {
		if o, n, ok := strings.Cut(full, "/"); ok {
			if owner == "" {
				owner = o
			}
			if name == "" {
				name = n
			}
		}
	}
	return owner, name
}
