// Package pathmap maps local file paths onto the remote roots of profiles.
package pathmap

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/quocson95/ideaftp/pkg/profile"
)

// Match is a profile whose local root contains the resolved path
type Match struct {
	Profile    profile.Profile
	RemotePath string
}

// Resolve returns every profile whose local root contains localPath, with
// the corresponding remote path. A root only matches on a path component
// boundary: /home/u/site contains /home/u/site/a.txt but not
// /home/u/site-legacy/a.txt. Matches are ordered longest local root first;
// profiles with equally long roots keep their configured order.
func Resolve(localPath string, profiles []profile.Profile) []Match {
	var matches []Match
	var rootLens []int

	for _, p := range profiles {
		if !p.HasMapping() {
			continue
		}
		root := trimLocal(p.LocalRoot)
		rest, ok := within(localPath, root)
		if !ok {
			continue
		}
		matches = append(matches, Match{Profile: p, RemotePath: joinRemote(p.RemoteRoot, rest)})
		rootLens = append(rootLens, len(root))
	}

	idx := make([]int, len(matches))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return rootLens[idx[a]] > rootLens[idx[b]] })

	sorted := make([]Match, len(matches))
	for i, j := range idx {
		sorted[i] = matches[j]
	}
	return sorted
}

// within reports whether localPath is root or lies below it, and returns the
// remainder after root.
func within(localPath, root string) (string, bool) {
	if localPath == root {
		return "", true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(localPath, prefix) {
		return "", false
	}
	return localPath[len(prefix):], true
}

func trimLocal(root string) string {
	trimmed := strings.TrimRight(root, string(filepath.Separator))
	if trimmed == "" || strings.HasSuffix(trimmed, ":") {
		// filesystem root such as "/" or "C:\"
		return root
	}
	return trimmed
}

func joinRemote(remoteRoot, rest string) string {
	root := strings.TrimRight(remoteRoot, "/")
	if rest == "" {
		if root == "" {
			return "/"
		}
		return root
	}
	return root + "/" + strings.TrimLeft(filepath.ToSlash(rest), "/")
}
