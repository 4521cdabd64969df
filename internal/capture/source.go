// Package capture abstracts live call audio sources.
package capture

import (
	"context"
	"errors"
)

// ErrPermissionDenied reports that the platform refused access to call audio
var ErrPermissionDenied = errors.New("capture: audio capture permission denied")

// Source streams normalized mono PCM from an active call. Read blocks until
// at least one sample is available, the context is canceled, or the stream
// ends with io.EOF. Implementations must make Close idempotent so the
// monitor can release a source unconditionally on every exit path.
type Source interface {
	// Read fills buf with samples and returns how many were written
	Read(ctx context.Context, buf []float32) (int, error)
	Close() error
}

// Device opens capture sources for call sessions. Open returns
// ErrPermissionDenied when the caller lacks audio access; any other error
// means the device is present but unusable right now.
type Device interface {
	Open(ctx context.Context) (Source, error)
}

// StaticDevice adapts an already-open source into a Device, used when the
// telephony layer hands over a per-call stream
type StaticDevice struct {
	Src Source
}

func (d StaticDevice) Open(ctx context.Context) (Source, error) {
	return d.Src, nil
}
