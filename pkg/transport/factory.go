package transport

import (
	"context"

	"github.com/quocson95/ideaftp/pkg/profile"
)

type connFactory interface {
	Accept(p *profile.Profile) bool
	Open(ctx context.Context, p *profile.Profile, opts Options, t *connTracker) (Conn, error)
	Name() string
}

var connFactories = []connFactory{
	&ftpFactory{},
	&sftpFactory{},
}

func getConnFactory(p *profile.Profile) connFactory {
	for _, factory := range connFactories {
		if factory.Accept(p) {
			return factory
		}
	}
	return nil
}

// Protocols lists the protocols Open can connect with
func Protocols() []string {
	names := make([]string, 0, len(connFactories))
	for _, f := range connFactories {
		names = append(names, f.Name())
	}
	return names
}
