package pathmap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quocson95/ideaftp/pkg/profile"
)

func mapped(name, local, remote string) profile.Profile {
	return profile.Profile{
		Name:       name,
		Protocol:   profile.ProtocolSFTP,
		Host:       "example.com",
		Username:   "deploy",
		LocalRoot:  filepath.FromSlash(local),
		RemoteRoot: remote,
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		local    string
		profiles []profile.Profile
		want     []string // "profile:remote"
	}{
		{
			name:     "basic mapping",
			local:    "/home/u/site/css/a.css",
			profiles: []profile.Profile{mapped("prod", "/home/u/site", "/var/www")},
			want:     []string{"prod:/var/www/css/a.css"},
		},
		{
			name:     "sibling with shared prefix does not match",
			local:    "/home/u/site-legacy/x.txt",
			profiles: []profile.Profile{mapped("prod", "/home/u/site", "/var/www")},
			want:     nil,
		},
		{
			name:     "trailing separators on both roots",
			local:    "/home/u/site/a.txt",
			profiles: []profile.Profile{mapped("prod", "/home/u/site/", "/var/www/")},
			want:     []string{"prod:/var/www/a.txt"},
		},
		{
			name:     "path equal to root",
			local:    "/home/u/site",
			profiles: []profile.Profile{mapped("prod", "/home/u/site", "/var/www")},
			want:     []string{"prod:/var/www"},
		},
		{
			name:     "remote root is slash",
			local:    "/home/u/site/a.txt",
			profiles: []profile.Profile{mapped("prod", "/home/u/site", "/")},
			want:     []string{"prod:/a.txt"},
		},
		{
			name:  "profiles without both roots are ignored",
			local: "/home/u/site/a.txt",
			profiles: []profile.Profile{
				mapped("no-remote", "/home/u/site", ""),
				mapped("no-local", "", "/var/www"),
			},
			want: nil,
		},
		{
			name:  "longest root first, ties keep configured order",
			local: "/home/u/site/blog/post.html",
			profiles: []profile.Profile{
				mapped("wide", "/home/u", "/srv/u"),
				mapped("prod", "/home/u/site", "/var/www"),
				mapped("blog", "/home/u/site/blog", "/var/blog"),
				mapped("staging", "/home/u/site", "/var/staging"),
			},
			want: []string{
				"blog:/var/blog/post.html",
				"prod:/var/www/blog/post.html",
				"staging:/var/staging/blog/post.html",
				"wide:/srv/u/site/blog/post.html",
			},
		},
		{
			name:     "filesystem root",
			local:    "/etc/hosts",
			profiles: []profile.Profile{mapped("root", "/", "/backup")},
			want:     []string{"root:/backup/etc/hosts"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := Resolve(filepath.FromSlash(tt.local), tt.profiles)

			var got []string
			for _, m := range matches {
				got = append(got, m.Profile.Name+":"+m.RemotePath)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveEmpty(t *testing.T) {
	matches := Resolve("/home/u/site/a.txt", nil)
	require.Empty(t, matches)
}
