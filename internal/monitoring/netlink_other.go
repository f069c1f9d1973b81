//go:build !linux

package monitoring

import (
	"context"
	"errors"
)

type Listener struct{}

func NewListener(...string) (*Listener, error) {
	return nil, errors.New("kernel uevents are only available on linux")
}

func (l *Listener) Close() error { return nil }

func (l *Listener) Run(ctx context.Context, _ func(*UEvent)) error {
	<-ctx.Done()
	return ctx.Err()
}
