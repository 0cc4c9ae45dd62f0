package scan

import (
	"context"
	"errors"
)

// ErrCameraUnavailable signals that no frame source could be opened.
// The scan pipeline surfaces it as an inline error state; manual code
// entry keeps working.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Frame is one captured image, encoded bytes as delivered by the
// camera implementation.
type Frame []byte

// FrameStream delivers frames until closed. Close must be safe to
// call more than once and must stop the Frames channel.
type FrameStream interface {
	Frames() <-chan Frame
	Close() error
}

// Camera opens a frame stream. Implementations live outside this
// package (a device camera, a remote uploader, test fakes).
type Camera interface {
	Open(ctx context.Context) (FrameStream, error)
}

// NoCamera is wired when no frame source exists. Opening it fails,
// leaving only the manual entry path.
type NoCamera struct{}

func (NoCamera) Open(context.Context) (FrameStream, error) {
	return nil, ErrCameraUnavailable
}
