package scan

import (
	"context"

	"ticket-checkin/internal/status"
)

// Frame is one opaque unit of capture output. For an attached optical
// scanner this is a camera frame; for HID wedge scanners it is the emitted
// text payload.
type Frame []byte

// CaptureDevice is an exclusive video/scan input. Open failures must be
// one of the typed errors in internal/status (ErrPermissionDenied,
// ErrDeviceNotFound, ErrUnsupported) so callers can render distinct
// operator guidance for each.
type CaptureDevice interface {
	// Frames starts capture and streams frames until the context is
	// cancelled or the device is closed.
	Frames(ctx context.Context) (<-chan Frame, error)

	// Close releases the device. Safe to call more than once.
	Close() error
}

// DeviceFactory acquires the terminal's capture device. A nil factory means
// the terminal has no camera; opening one then fails with ErrUnsupported.
type DeviceFactory func() (CaptureDevice, error)

// Decoder is the black-box optical decoder. Decode returns the decoded
// payload and true when the frame contained one.
type Decoder interface {
	Decode(Frame) (string, bool)
}

// TextDecoder treats each frame as an already-decoded text payload, which
// is what HID wedge scanners deliver.
type TextDecoder struct{}

func (TextDecoder) Decode(f Frame) (string, bool) {
	if len(f) == 0 {
		return "", false
	}
	return string(f), true
}

// DecodeResult carries exactly one normalized code or one typed error.
type DecodeResult struct {
	Code string
	Err  error
}

// DecodeOnce runs a one-shot decode subscription: it consumes frames until
// the first payload yields a valid ticket code, emits that single result,
// then tears the stream down and releases the device. Frames whose payload
// carries no code are skipped. If the context is cancelled before a code
// arrives, the channel closes without emitting — a cancelled scan never
// produces a late result.
func DecodeOnce(ctx context.Context, dev CaptureDevice, dec Decoder) <-chan DecodeResult {
	out := make(chan DecodeResult, 1)

	go func() {
		defer close(out)
		defer dev.Close()

		frames, err := dev.Frames(ctx)
		if err != nil {
			out <- DecodeResult{Err: err}
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					out <- DecodeResult{Err: status.ErrDecodeEnded}
					return
				}
				payload, decoded := dec.Decode(frame)
				if !decoded {
					continue
				}
				code, err := ExtractCode(payload)
				if err != nil {
					// Decoded noise; keep scanning.
					continue
				}
				out <- DecodeResult{Code: code}
				return
			}
		}
	}()

	return out
}
