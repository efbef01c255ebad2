package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDiffBase is returned when a record violates the payload invariants.
var ErrInvalidDiffBase = errors.New("invalid diff base")

// DefaultRemote is the remote recorded for tags and unqualified remote branches.
const DefaultRemote = "origin"

// Type tags the active payload of a DiffBase.
type Type string

const (
	TypeGitRevision Type = "GIT_REVISION"
	TypePublicURL   Type = "PUBLIC_URL"
	TypeFilePath    Type = "FILE_PATH"
)

// RevisionKind records how a GitRevision was named.
type RevisionKind string

const (
	RevisionCommit       RevisionKind = "COMMIT"
	RevisionLocalBranch  RevisionKind = "LOCAL_BRANCH"
	RevisionRemoteBranch RevisionKind = "REMOTE_BRANCH"
	RevisionRemoteTag    RevisionKind = "REMOTE_TAG"
	// RevisionPullRequest keeps its historical wire value for downstream readers.
	RevisionPullRequest RevisionKind = "TRAVIS_PR"
)

// Source is the single active payload of a DiffBase. It is implemented by
// PublicURL, LocalFile and GitRevision only.
type Source interface {
	Type() Type
	validate() error
}

// PublicURL points at a baseline bundle served over HTTP(S).
type PublicURL struct {
	URL string
}

func (PublicURL) Type() Type { return TypePublicURL }

func (p PublicURL) validate() error {
	if p.URL == "" {
		return fmt.Errorf("%w: public url is empty", ErrInvalidDiffBase)
	}
	return nil
}

// LocalFile points at a manifest on the local filesystem.
type LocalFile struct {
	Path string
	// IsDefault is true iff Path equals the conventional manifest path.
	IsDefault bool
}

func (LocalFile) Type() Type { return TypeFilePath }

func (l LocalFile) validate() error {
	if l.Path == "" {
		return fmt.Errorf("%w: local file path is empty", ErrInvalidDiffBase)
	}
	return nil
}

// GitRevision identifies a commit and how it was named.
type GitRevision struct {
	Kind               RevisionKind `json:"type"`
	GoldenJSONFilePath string       `json:"golden_json_file_path"`
	Commit             string       `json:"commit"`
	Author             string       `json:"author"`
	Date               time.Time    `json:"date"`
	Branch             string       `json:"branch,omitempty"`
	Remote             string       `json:"remote,omitempty"`
	Tag                string       `json:"tag,omitempty"`
	PRNumber           *int         `json:"pr_number,omitempty"`
}

func (GitRevision) Type() Type { return TypeGitRevision }

// WithPRNumber returns a copy of the revision carrying the pull request number.
func (g GitRevision) WithPRNumber(number int) GitRevision {
	g.PRNumber = &number
	return g
}

func (g GitRevision) validate() error {
	switch g.Kind {
	case RevisionCommit, RevisionLocalBranch, RevisionRemoteBranch, RevisionRemoteTag, RevisionPullRequest:
	default:
		return fmt.Errorf("%w: unknown revision type %q", ErrInvalidDiffBase, g.Kind)
	}
	if !IsFullCommitHash(g.Commit) {
		return fmt.Errorf("%w: commit %q is not a full hash", ErrInvalidDiffBase, g.Commit)
	}
	if g.GoldenJSONFilePath == "" {
		return fmt.Errorf("%w: golden json file path is empty", ErrInvalidDiffBase)
	}

	remoteKind := g.Kind == RevisionRemoteBranch || g.Kind == RevisionRemoteTag
	if remoteKind != (g.Remote != "") {
		return fmt.Errorf("%w: remote %q not allowed for %s", ErrInvalidDiffBase, g.Remote, g.Kind)
	}
	switch g.Kind {
	case RevisionLocalBranch, RevisionRemoteBranch:
		if g.Branch == "" {
			return fmt.Errorf("%w: %s requires a branch", ErrInvalidDiffBase, g.Kind)
		}
	case RevisionRemoteTag:
		if g.Tag == "" {
			return fmt.Errorf("%w: %s requires a tag", ErrInvalidDiffBase, g.Kind)
		}
	case RevisionPullRequest:
		if g.PRNumber == nil {
			return fmt.Errorf("%w: %s requires a pr number", ErrInvalidDiffBase, g.Kind)
		}
	}
	if g.PRNumber != nil && *g.PRNumber <= 0 {
		return fmt.Errorf("%w: pr number %d", ErrInvalidDiffBase, *g.PRNumber)
	}
	return nil
}

// IsFullCommitHash reports whether value is a full SHA-1 or SHA-256 object name.
func IsFullCommitHash(value string) bool {
	if len(value) != 40 && len(value) != 64 {
		return false
	}
	for _, c := range value {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// DiffBase is the resolved baseline descriptor handed to baseline-fetch logic.
type DiffBase struct {
	// InputString is the normalized specifier that produced the record.
	InputString string
	Source      Source
}

// NewPublicURL builds a PUBLIC_URL diff base.
func NewPublicURL(url string) DiffBase {
	return DiffBase{InputString: url, Source: PublicURL{URL: url}}
}

// NewLocalFile builds a FILE_PATH diff base.
func NewLocalFile(path, defaultPath string) DiffBase {
	return DiffBase{InputString: path, Source: LocalFile{Path: path, IsDefault: path == defaultPath}}
}

// NewGitRevision builds a GIT_REVISION diff base.
func NewGitRevision(input string, rev GitRevision) DiffBase {
	return DiffBase{InputString: input, Source: rev}
}

// Type returns the tag of the active payload.
func (d DiffBase) Type() Type {
	if d.Source == nil {
		return ""
	}
	return d.Source.Type()
}

// GitRevision returns the revision payload when the record is GIT_REVISION.
func (d DiffBase) GitRevision() (GitRevision, bool) {
	rev, ok := d.Source.(GitRevision)
	return rev, ok
}

// WithPRNumber returns a copy with the pull request number attached to the
// revision payload. Non-revision records are returned unchanged.
func (d DiffBase) WithPRNumber(number int) DiffBase {
	rev, ok := d.GitRevision()
	if !ok {
		return d
	}
	d.Source = rev.WithPRNumber(number)
	return d
}

// PRNumber returns the pull request backing the record, if any.
func (d DiffBase) PRNumber() (int, bool) {
	rev, ok := d.GitRevision()
	if !ok || rev.PRNumber == nil {
		return 0, false
	}
	return *rev.PRNumber, true
}

// Validate checks the payload invariants.
func (d DiffBase) Validate() error {
	if d.Source == nil {
		return fmt.Errorf("%w: no payload", ErrInvalidDiffBase)
	}
	if d.InputString == "" {
		return fmt.Errorf("%w: input string is empty", ErrInvalidDiffBase)
	}
	return d.Source.validate()
}

type wireDiffBase struct {
	Type               Type         `json:"type"`
	InputString        string       `json:"input_string"`
	PublicURL          *string      `json:"public_url,omitempty"`
	LocalFilePath      *string      `json:"local_file_path,omitempty"`
	IsDefaultLocalFile *bool        `json:"is_default_local_file,omitempty"`
	GitRevision        *GitRevision `json:"git_revision,omitempty"`
}

func (d DiffBase) MarshalJSON() ([]byte, error) {
	wire := wireDiffBase{Type: d.Type(), InputString: d.InputString}
	switch src := d.Source.(type) {
	case PublicURL:
		wire.PublicURL = &src.URL
	case LocalFile:
		wire.LocalFilePath = &src.Path
		wire.IsDefaultLocalFile = &src.IsDefault
	case GitRevision:
		wire.GitRevision = &src
	default:
		return nil, fmt.Errorf("%w: no payload", ErrInvalidDiffBase)
	}
	return json.Marshal(wire)
}

func (d *DiffBase) UnmarshalJSON(data []byte) error {
	var wire wireDiffBase
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	set := 0
	for _, present := range []bool{wire.PublicURL != nil, wire.LocalFilePath != nil, wire.GitRevision != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: expected exactly one payload, got %d", ErrInvalidDiffBase, set)
	}

	out := DiffBase{InputString: wire.InputString}
	switch wire.Type {
	case TypePublicURL:
		if wire.PublicURL == nil {
			return fmt.Errorf("%w: %s without public_url", ErrInvalidDiffBase, wire.Type)
		}
		out.Source = PublicURL{URL: *wire.PublicURL}
	case TypeFilePath:
		if wire.LocalFilePath == nil {
			return fmt.Errorf("%w: %s without local_file_path", ErrInvalidDiffBase, wire.Type)
		}
		local := LocalFile{Path: *wire.LocalFilePath}
		if wire.IsDefaultLocalFile != nil {
			local.IsDefault = *wire.IsDefaultLocalFile
		}
		out.Source = local
	case TypeGitRevision:
		if wire.GitRevision == nil {
			return fmt.Errorf("%w: %s without git_revision", ErrInvalidDiffBase, wire.Type)
		}
		out.Source = *wire.GitRevision
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDiffBase, wire.Type)
	}
	*d = out
	return nil
}
