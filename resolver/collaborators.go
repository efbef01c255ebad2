package resolver

import (
	"context"
	"os"
	"time"

	"github.com/izavyalov-dev/diffbase/protocol"
)

// Git answers questions about the local repository.
type Git interface {
	FetchRemotes(ctx context.Context) error
	ResolveFullSymbolicName(ctx context.Context, ref string) (string, bool, error)
	ResolveFullCommitHash(ctx context.Context, ref string) (string, error)
	RemoteNames(ctx context.Context) ([]string, error)
	CommitAuthor(ctx context.Context, commit string) (string, error)
	CommitDate(ctx context.Context, commit string) (time.Time, error)
}

// PullRequests looks up pull request metadata on the source forge.
type PullRequests interface {
	PullRequestNumber(ctx context.Context, branch string) (int, bool, error)
	PullRequestBaseBranch(ctx context.Context, number int) (string, bool, error)
}

// FileSystem reports whether a path exists.
type FileSystem interface {
	Exists(path string) bool
}

// OSFileSystem checks paths relative to the process working directory.
type OSFileSystem struct{}

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ManifestOnly admits only manifestPath from fs. Every other path is
// reported missing and is resolved as a git reference instead.
func ManifestOnly(fs FileSystem, manifestPath string) FileSystem {
	if fs == nil {
		fs = OSFileSystem{}
	}
	return manifestOnlyFS{fs: fs, path: manifestPath}
}

type manifestOnlyFS struct {
	fs   FileSystem
	path string
}

func (m manifestOnlyFS) Exists(path string) bool {
	return path == m.path && m.fs.Exists(path)
}

// Sink receives every successfully resolved record, for example to persist or
// publish it. Sinks are never consulted during resolution.
type Sink interface {
	Record(ctx context.Context, operation string, base protocol.DiffBase) error
}

// Sinks fans a record out to several sinks and returns the first error.
type Sinks []Sink

func (s Sinks) Record(ctx context.Context, operation string, base protocol.DiffBase) error {
	var first error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, operation, base); err != nil && first == nil {
			first = err
		}
	}
	return first
}
