// Package refs classifies fully-qualified git reference names.
package refs

import (
	"regexp"
	"sort"
	"strings"

	"github.com/izavyalov-dev/diffbase/protocol"
)

const originPrefix = protocol.DefaultRemote + "/"

var (
	remoteRefPattern = regexp.MustCompile(`^refs/remotes/(.+)$`)
	localRefPattern  = regexp.MustCompile(`^refs/heads/(.+)$`)
	tagRefPattern    = regexp.MustCompile(`^refs/tags/(.+)$`)
	versionTag       = regexp.MustCompile(`^v[0-9.]+$`)
)

// Classification holds the short name captured for a symbolic ref. At most one
// field is non-empty.
type Classification struct {
	Remote string
	Local  string
	Tag    string
}

// Empty reports whether the name matched none of the known forms.
func (c Classification) Empty() bool {
	return c.Remote == "" && c.Local == "" && c.Tag == ""
}

// Classify matches a fully-qualified symbolic name against the remote branch,
// local branch and tag forms.
func Classify(fullName string) Classification {
	return Classification{
		Remote: capture(remoteRefPattern, fullName),
		Local:  capture(localRefPattern, fullName),
		Tag:    capture(tagRefPattern, fullName),
	}
}

func capture(pattern *regexp.Regexp, value string) string {
	match := pattern.FindStringSubmatch(value)
	if len(match) != 2 {
		return ""
	}
	return match[1]
}

// SplitRemote splits a remote branch short name such as "origin/release-1.2"
// into the remote and branch parts. The longest known remote that prefixes the
// name followed by "/" wins. When no known remote matches, the first path
// segment is used, and a name without "/" is attributed to origin.
func SplitRemote(name string, remotes []string) (remote string, branch string) {
	candidates := append([]string(nil), remotes...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if strings.HasPrefix(name, candidate+"/") && len(name) > len(candidate)+1 {
			return candidate, name[len(candidate)+1:]
		}
	}

	if idx := strings.Index(name, "/"); idx > 0 && idx < len(name)-1 {
		return name[:idx], name[idx+1:]
	}
	return protocol.DefaultRemote, name
}

// NeedsFetch reports whether a ref names something that may only exist after a
// remote fetch: an origin branch or a version tag.
func NeedsFetch(ref string) bool {
	return strings.HasPrefix(ref, originPrefix) || IsVersionTag(ref)
}

// IsVersionTag reports whether ref looks like "v1.2.3".
func IsVersionTag(ref string) bool {
	return versionTag.MatchString(ref)
}
