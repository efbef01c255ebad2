package ci

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/izavyalov-dev/diffbase/protocol"
)

// CommitMetadata looks up descriptive metadata for a commit.
type CommitMetadata interface {
	CommitAuthor(ctx context.Context, commit string) (string, error)
	CommitDate(ctx context.Context, commit string) (time.Time, error)
}

// FetchCommitMetadata issues the author and date lookups concurrently. Either
// failure is returned as is.
func FetchCommitMetadata(ctx context.Context, md CommitMetadata, commit string) (string, time.Time, error) {
	var (
		author string
		date   time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		author, err = md.CommitAuthor(gctx, commit)
		return err
	})
	g.Go(func() error {
		var err error
		date, err = md.CommitDate(gctx, commit)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", time.Time{}, err
	}
	return author, date, nil
}

// ReadRevision synthesizes a diff base from the CI signals. The boolean result
// is false when the job is not a recognized CI build.
func ReadRevision(ctx context.Context, c Context, md CommitMetadata, manifestPath string) (protocol.DiffBase, bool, error) {
	commit := c.PRHeadCommit
	if commit == "" {
		commit = c.Commit
	}
	if commit == "" {
		return protocol.DiffBase{}, false, nil
	}

	author, date, err := FetchCommitMetadata(ctx, md, commit)
	if err != nil {
		return protocol.DiffBase{}, false, fmt.Errorf("ci commit %s metadata: %w", commit, err)
	}

	rev := protocol.GitRevision{
		GoldenJSONFilePath: manifestPath,
		Commit:             commit,
		Author:             author,
		Date:               date,
	}
	switch {
	case c.HasPullRequest():
		rev.Kind = protocol.RevisionPullRequest
		rev.Branch = c.PRBranch
		if rev.Branch == "" {
			rev.Branch = c.Branch
		}
		rev = rev.WithPRNumber(c.PRNumber)
	case c.Tag != "":
		rev.Kind = protocol.RevisionRemoteTag
		rev.Tag = c.Tag
		rev.Remote = protocol.DefaultRemote
	case c.Branch != "":
		rev.Kind = protocol.RevisionLocalBranch
		rev.Branch = c.Branch
	default:
		return protocol.DiffBase{}, false, nil
	}

	base := protocol.NewGitRevision(inputString(rev), rev)
	if err := base.Validate(); err != nil {
		return protocol.DiffBase{}, false, err
	}
	return base, true, nil
}

func inputString(rev protocol.GitRevision) string {
	switch {
	case rev.PRNumber != nil:
		return "ci/pr/" + strconv.Itoa(*rev.PRNumber)
	case rev.Tag != "":
		return "ci/tag/" + rev.Tag
	case rev.Branch != "":
		return "ci/branch/" + rev.Branch
	default:
		return "ci/commit/" + rev.Commit
	}
}
