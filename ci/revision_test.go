package ci

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/izavyalov-dev/diffbase/protocol"
)

const (
	headCommit = "1111111111111111111111111111111111111111"
	jobCommit  = "2222222222222222222222222222222222222222"
)

type fakeMetadata struct {
	mu      sync.Mutex
	lookups []string
	err     error
}

func (f *fakeMetadata) CommitAuthor(ctx context.Context, commit string) (string, error) {
	f.record("author:" + commit)
	if f.err != nil {
		return "", f.err
	}
	return "Grace", nil
}

func (f *fakeMetadata) CommitDate(ctx context.Context, commit string) (time.Time, error) {
	f.record("date:" + commit)
	if f.err != nil {
		return time.Time{}, f.err
	}
	return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), nil
}

func (f *fakeMetadata) record(lookup string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, lookup)
}

func TestReadRevisionPullRequestWins(t *testing.T) {
	md := &fakeMetadata{}
	c := Context{
		InCI:         true,
		Branch:       "main",
		Tag:          "v1.0",
		Commit:       jobCommit,
		PRNumber:     9,
		PRBranch:     "feature/x",
		PRHeadCommit: headCommit,
	}

	base, ok, err := ReadRevision(context.Background(), c, md, "golden.json")
	if err != nil || !ok {
		t.Fatalf("expected revision, got %v %v", ok, err)
	}
	rev, _ := base.GitRevision()
	if rev.Kind != protocol.RevisionPullRequest {
		t.Fatalf("expected pull request kind, got %s", rev.Kind)
	}
	if rev.Commit != headCommit || rev.Branch != "feature/x" || rev.Tag != "" || rev.Remote != "" {
		t.Fatalf("unexpected revision %+v", rev)
	}
	if rev.PRNumber == nil || *rev.PRNumber != 9 {
		t.Fatalf("unexpected pr number %v", rev.PRNumber)
	}
	if base.InputString != "ci/pr/9" {
		t.Fatalf("unexpected input string %q", base.InputString)
	}
	if rev.Author != "Grace" || rev.GoldenJSONFilePath != "golden.json" {
		t.Fatalf("unexpected metadata %+v", rev)
	}
}

func TestReadRevisionPullRequestFallsBackToJobBranch(t *testing.T) {
	c := Context{Branch: "main", Commit: jobCommit, PRNumber: 3}
	base, ok, err := ReadRevision(context.Background(), c, &fakeMetadata{}, "golden.json")
	if err != nil || !ok {
		t.Fatalf("expected revision, got %v %v", ok, err)
	}
	rev, _ := base.GitRevision()
	if rev.Branch != "main" || rev.Commit != jobCommit {
		t.Fatalf("unexpected revision %+v", rev)
	}
}

func TestReadRevisionTag(t *testing.T) {
	c := Context{Tag: "v2.0.1", Branch: "main", Commit: jobCommit}
	base, ok, err := ReadRevision(context.Background(), c, &fakeMetadata{}, "golden.json")
	if err != nil || !ok {
		t.Fatalf("expected revision, got %v %v", ok, err)
	}
	rev, _ := base.GitRevision()
	if rev.Kind != protocol.RevisionRemoteTag || rev.Tag != "v2.0.1" || rev.Remote != "origin" || rev.PRNumber != nil {
		t.Fatalf("unexpected revision %+v", rev)
	}
	if base.InputString != "ci/tag/v2.0.1" {
		t.Fatalf("unexpected input string %q", base.InputString)
	}
}

func TestReadRevisionBranch(t *testing.T) {
	c := Context{Branch: "develop", Commit: jobCommit}
	base, ok, err := ReadRevision(context.Background(), c, &fakeMetadata{}, "golden.json")
	if err != nil || !ok {
		t.Fatalf("expected revision, got %v %v", ok, err)
	}
	rev, _ := base.GitRevision()
	if rev.Kind != protocol.RevisionLocalBranch || rev.Branch != "develop" {
		t.Fatalf("unexpected revision %+v", rev)
	}
	if base.InputString != "ci/branch/develop" {
		t.Fatalf("unexpected input string %q", base.InputString)
	}
}

func TestReadRevisionAbsentWithoutCommit(t *testing.T) {
	md := &fakeMetadata{}
	_, ok, err := ReadRevision(context.Background(), Context{Branch: "main", PRNumber: 4}, md, "golden.json")
	if err != nil || ok {
		t.Fatalf("expected absent, got %v %v", ok, err)
	}
	if len(md.lookups) != 0 {
		t.Fatalf("expected no lookups, got %v", md.lookups)
	}
}

func TestReadRevisionCommitOnlyStillLooksUpMetadata(t *testing.T) {
	md := &fakeMetadata{}
	_, ok, err := ReadRevision(context.Background(), Context{Commit: jobCommit}, md, "golden.json")
	if err != nil || ok {
		t.Fatalf("expected absent, got %v %v", ok, err)
	}
	if len(md.lookups) != 2 {
		t.Fatalf("expected author and date lookups, got %v", md.lookups)
	}
}

func TestReadRevisionMetadataFailure(t *testing.T) {
	boom := errors.New("bad object")
	_, _, err := ReadRevision(context.Background(), Context{Branch: "main", Commit: jobCommit}, &fakeMetadata{err: boom}, "golden.json")
	if !errors.Is(err, boom) {
		t.Fatalf("expected metadata error, got %v", err)
	}
}

func TestReadRevisionPrecedenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("pull request head, branch and tag always yield TRAVIS_PR", prop.ForAll(
		func(pr int, branch, tag string) bool {
			c := Context{PRNumber: pr, PRHeadCommit: headCommit, Branch: branch, Tag: tag}
			base, ok, err := ReadRevision(context.Background(), c, &fakeMetadata{}, "golden.json")
			if err != nil || !ok {
				return false
			}
			rev, _ := base.GitRevision()
			return rev.Kind == protocol.RevisionPullRequest && rev.Tag == ""
		},
		gen.IntRange(1, 100000),
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
