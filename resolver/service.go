// Package resolver turns a diff base specifier and the CI context into a
// fully-qualified protocol.DiffBase.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/izavyalov-dev/diffbase/ci"
	"github.com/izavyalov-dev/diffbase/internal/observability"
	"github.com/izavyalov-dev/diffbase/protocol"
	"github.com/izavyalov-dev/diffbase/refs"
)

const (
	OperationGolden   = "golden"
	OperationSnapshot = "snapshot"
	OperationMaster   = "master"
	OperationRef      = "ref"
)

const (
	DefaultManifestPath = "screenshots/golden.json"
	DefaultBase         = "origin/master"
	snapshotBase        = "HEAD"
)

var (
	// ErrEmptySpecifier is returned for an empty specifier or ref.
	ErrEmptySpecifier = errors.New("diff base specifier is empty")
	// ErrUnknownRevision is returned when a literal ref cannot be verified as a commit.
	ErrUnknownRevision = errors.New("unknown revision")
)

var urlPattern = regexp.MustCompile(`^https?://`)

// Enrichment is never attempted when the resolved branch is one of these.
var reservedBranches = map[string]struct{}{
	"master":        {},
	"origin/master": {},
	"HEAD":          {},
}

// Options carries the CLI/config inputs of a resolution.
type Options struct {
	// Base is the user supplied specifier used by ResolveGolden.
	Base         string
	ManifestPath string
	SkipFetch    bool
	// Online reports network reachability. Offline disables fetches and
	// pull request lookups.
	Online bool

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Service resolves diff bases. It holds no state across calls beyond what
// its collaborators keep.
type Service struct {
	git     Git
	prs     PullRequests
	fs      FileSystem
	ci      ci.Context
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService constructs a resolver. prs may be nil, which disables pull
// request lookups.
func NewService(git Git, prs PullRequests, fs FileSystem, ciContext ci.Context, opts Options) *Service {
	if fs == nil {
		fs = OSFileSystem{}
	}
	if opts.ManifestPath == "" {
		opts.ManifestPath = DefaultManifestPath
	}
	if opts.Base == "" {
		opts.Base = DefaultBase
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger("resolver")
	}
	return &Service{
		git:     git,
		prs:     prs,
		fs:      fs,
		ci:      ciContext,
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// ResolveGolden returns the CI synthesized base, else the user supplied one.
func (s *Service) ResolveGolden(ctx context.Context) (protocol.DiffBase, error) {
	base, err := s.golden(ctx)
	return s.observe(OperationGolden, base, err)
}

// ResolveSnapshot returns the CI synthesized base, else HEAD.
func (s *Service) ResolveSnapshot(ctx context.Context) (protocol.DiffBase, error) {
	base, ok, err := s.fromCI(ctx)
	if err == nil && !ok {
		base, err = s.resolve(ctx, snapshotBase)
	}
	return s.observe(OperationSnapshot, base, err)
}

// ResolveMaster resolves the branch the golden base's pull request targets,
// or origin/master when there is no pull request.
func (s *Service) ResolveMaster(ctx context.Context) (protocol.DiffBase, error) {
	base, err := s.master(ctx)
	return s.observe(OperationMaster, base, err)
}

// Resolve classifies raw and enriches the result with a pull request number
// when running under CI with network access.
func (s *Service) Resolve(ctx context.Context, raw string) (protocol.DiffBase, error) {
	base, err := s.resolve(ctx, raw)
	return s.observe(OperationRef, base, err)
}

func (s *Service) golden(ctx context.Context) (protocol.DiffBase, error) {
	base, ok, err := s.fromCI(ctx)
	if err != nil || ok {
		return base, err
	}
	return s.resolve(ctx, s.opts.Base)
}

func (s *Service) master(ctx context.Context) (protocol.DiffBase, error) {
	golden, err := s.golden(ctx)
	if err != nil {
		return protocol.DiffBase{}, fmt.Errorf("resolve golden base: %w", err)
	}
	number, ok := golden.PRNumber()
	if !ok {
		return s.resolve(ctx, DefaultBase)
	}

	branch := s.ci.BaseBranch
	if branch == "" {
		branch = s.lookupBaseBranch(ctx, number)
	}
	if branch == "" {
		return s.resolve(ctx, DefaultBase)
	}
	return s.resolve(ctx, remoteBranch(branch))
}

func (s *Service) lookupBaseBranch(ctx context.Context, number int) string {
	if !s.opts.Online || s.prs == nil {
		s.logger.Debug("pr base lookup skipped", "event", "pr_base_lookup_skipped", "pr_number", number, "online", s.opts.Online)
		return ""
	}
	branch, ok, err := s.prs.PullRequestBaseBranch(ctx, number)
	if err != nil {
		s.logger.Warn("pr base lookup failed", "event", "pr_base_lookup_failed", "pr_number", number, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return branch
}

// remoteBranch qualifies a bare branch name with the default remote.
func remoteBranch(branch string) string {
	if strings.HasPrefix(branch, protocol.DefaultRemote+"/") {
		return branch
	}
	return protocol.DefaultRemote + "/" + branch
}

func (s *Service) fromCI(ctx context.Context) (protocol.DiffBase, bool, error) {
	base, ok, err := ci.ReadRevision(ctx, s.ci, s.git, s.opts.ManifestPath)
	if err != nil {
		return protocol.DiffBase{}, false, err
	}
	if ok {
		s.logger.Debug("ci diff base used", "event", "ci_diff_base_used", "input", base.InputString)
	}
	return base, ok, nil
}

func (s *Service) resolve(ctx context.Context, raw string) (protocol.DiffBase, error) {
	base, err := s.classify(ctx, raw)
	if err != nil {
		return protocol.DiffBase{}, err
	}
	return s.enrich(ctx, base)
}

// classify runs the URL, local file and git reference checks in order.
func (s *Service) classify(ctx context.Context, raw string) (protocol.DiffBase, error) {
	if raw == "" {
		return protocol.DiffBase{}, ErrEmptySpecifier
	}
	if urlPattern.MatchString(raw) {
		return protocol.NewPublicURL(raw), nil
	}
	if s.fs.Exists(raw) {
		return protocol.NewLocalFile(raw, s.opts.ManifestPath), nil
	}

	ref, path, _ := strings.Cut(raw, ":")
	if ref == "" {
		return protocol.DiffBase{}, fmt.Errorf("%w: %q has no ref", ErrEmptySpecifier, raw)
	}
	if path == "" {
		path = s.opts.ManifestPath
	}
	return s.gitRevision(ctx, ref, path)
}

func (s *Service) gitRevision(ctx context.Context, ref, path string) (protocol.DiffBase, error) {
	logger := observability.WithInput(s.logger, ref)

	if refs.NeedsFetch(ref) {
		s.fetch(ctx, logger)
	}

	fullName, ok, err := s.git.ResolveFullSymbolicName(ctx, ref)
	if err != nil {
		return protocol.DiffBase{}, fmt.Errorf("resolve symbolic name of %q: %w", ref, err)
	}

	rev := protocol.GitRevision{GoldenJSONFilePath: path}
	target := ref
	class := refs.Classify(fullName)
	switch {
	case !ok || class.Empty():
		logger.Debug("ref treated as commit", "event", "ref_treated_as_commit", "symbolic_name", fullName)
		rev.Kind = protocol.RevisionCommit
	case class.Remote != "":
		remotes, err := s.git.RemoteNames(ctx)
		if err != nil {
			return protocol.DiffBase{}, fmt.Errorf("list remotes: %w", err)
		}
		rev.Kind = protocol.RevisionRemoteBranch
		rev.Remote, rev.Branch = refs.SplitRemote(class.Remote, remotes)
		target = fullName
	case class.Tag != "":
		rev.Kind = protocol.RevisionRemoteTag
		rev.Remote = protocol.DefaultRemote
		rev.Tag = class.Tag
		target = fullName
	default:
		rev.Kind = protocol.RevisionLocalBranch
		rev.Branch = class.Local
		target = fullName
	}

	commit, err := s.git.ResolveFullCommitHash(ctx, target)
	if err != nil {
		return protocol.DiffBase{}, fmt.Errorf("%w %q: %w", ErrUnknownRevision, ref, err)
	}
	author, date, err := ci.FetchCommitMetadata(ctx, s.git, commit)
	if err != nil {
		return protocol.DiffBase{}, fmt.Errorf("commit %s metadata: %w", commit, err)
	}
	rev.Commit = commit
	rev.Author = author
	rev.Date = date
	observability.WithCommit(logger, commit).Debug("revision resolved", "event", "revision_resolved", "revision_type", rev.Kind)

	return protocol.NewGitRevision(ref+":"+path, rev), nil
}

// fetch is best effort; failures are logged and resolution continues offline.
func (s *Service) fetch(ctx context.Context, logger *slog.Logger) {
	if s.opts.SkipFetch || !s.opts.Online {
		logger.Debug("remote fetch skipped", "event", "remote_fetch_skipped", "skip_fetch", s.opts.SkipFetch, "online", s.opts.Online)
		s.metrics.IncFetch("skipped")
		return
	}
	if err := s.git.FetchRemotes(ctx); err != nil {
		logger.Warn("remote fetch failed", "event", "remote_fetch_failed", "error", err)
		s.metrics.IncFetch("failed")
		return
	}
	s.metrics.IncFetch("ok")
}

func (s *Service) enrich(ctx context.Context, base protocol.DiffBase) (protocol.DiffBase, error) {
	rev, ok := base.GitRevision()
	if !ok || rev.Branch == "" {
		return base, base.Validate()
	}
	if !s.opts.Online || !s.ci.InCI || s.prs == nil || isReserved(rev.Branch) {
		s.logger.Debug("pr enrichment skipped", "event", "pr_enrichment_skipped", "branch", rev.Branch, "online", s.opts.Online, "in_ci", s.ci.InCI)
		s.metrics.IncEnrichment("skipped")
		return base, base.Validate()
	}

	number, found, err := s.prs.PullRequestNumber(ctx, rev.Branch)
	switch {
	case err != nil:
		s.logger.Warn("pr enrichment failed", "event", "pr_enrichment_failed", "branch", rev.Branch, "error", err)
		s.metrics.IncEnrichment("failed")
	case !found:
		s.metrics.IncEnrichment("not_found")
	default:
		base = base.WithPRNumber(number)
		s.metrics.IncEnrichment("attached")
	}
	return base, base.Validate()
}

func isReserved(name string) bool {
	_, ok := reservedBranches[name]
	return ok
}

func (s *Service) observe(operation string, base protocol.DiffBase, err error) (protocol.DiffBase, error) {
	if err != nil {
		s.metrics.IncFailure(operation)
		return protocol.DiffBase{}, err
	}
	s.metrics.IncResolution(operation, string(base.Type()))

	attrs := []any{"event", "diff_base_resolved", "operation", operation, "type", base.Type(), "input", base.InputString}
	if rev, ok := base.GitRevision(); ok {
		attrs = append(attrs, "revision_type", rev.Kind, "commit", observability.ShortCommit(rev.Commit))
		if rev.PRNumber != nil {
			attrs = append(attrs, "pr_number", *rev.PRNumber)
		}
	}
	s.logger.Info("diff base resolved", attrs...)
	return base, nil
}
