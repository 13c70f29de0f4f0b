// Package capture brokers a screen capture between the engine and a crop
// overlay: the full screenshot is taken, handed to the overlay, and the
// caller waits until the overlay completes with a cropped image or cancels.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"chatdesk/internal/models"
)

var (
	ErrCancelled    = errors.New("screen capture cancelled")
	ErrCaptureBusy  = errors.New("a screen capture is already pending")
	ErrNoCapture    = errors.New("no screen capture pending")
	ErrNotAnImage   = errors.New("capture result is not an image")
	errEmptyCapture = errors.New("capture command produced no output")
)

// Capturer grabs the whole screen as PNG bytes.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// CommandCapturer runs an external program that writes a PNG to stdout.
type CommandCapturer struct {
	Command []string
}

func (c CommandCapturer) Capture(ctx context.Context) ([]byte, error) {
	if len(c.Command) == 0 {
		return nil, fmt.Errorf("capture command not configured")
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w: %s", c.Command[0], err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, errEmptyCapture
	}
	return stdout.Bytes(), nil
}

type result struct {
	attachment models.Attachment
	err        error
}

type pending struct {
	source string
	done   chan result
}

// Broker allows one pending capture at a time.
type Broker struct {
	capturer Capturer
	now      func() time.Time

	mu      sync.Mutex
	pending *pending
}

func NewBroker(capturer Capturer) *Broker {
	return &Broker{capturer: capturer, now: time.Now}
}

// Request takes a screenshot and blocks until the overlay completes or
// cancels, or ctx ends.
func (b *Broker) Request(ctx context.Context) (models.Attachment, error) {
	b.mu.Lock()
	if b.pending != nil {
		b.mu.Unlock()
		return models.Attachment{}, ErrCaptureBusy
	}
	p := &pending{done: make(chan result, 1)}
	b.pending = p
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.pending == p {
			b.pending = nil
		}
		b.mu.Unlock()
	}()

	image, err := b.capturer.Capture(ctx)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("capture screen: %w", err)
	}
	b.mu.Lock()
	p.source = models.NewAttachment("screen.png", "image/png", image).Content
	b.mu.Unlock()

	select {
	case res := <-p.done:
		return res.attachment, res.err
	case <-ctx.Done():
		return models.Attachment{}, ctx.Err()
	}
}

// Source returns the full screenshot the overlay crops from.
func (b *Broker) Source() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil || b.pending.source == "" {
		return "", ErrNoCapture
	}
	return b.pending.source, nil
}

// Complete resolves the pending capture with the cropped image.
func (b *Broker) Complete(dataURL string) error {
	mimeType, data, err := models.DecodeDataURL(dataURL)
	if err != nil {
		return fmt.Errorf("decode capture: %w", err)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return ErrNotAnImage
	}
	name := fmt.Sprintf("screenshot-%d.png", b.now().UnixMilli())
	return b.resolve(result{attachment: models.NewAttachment(name, mimeType, data)})
}

// Cancel abandons the pending capture.
func (b *Broker) Cancel() error {
	return b.resolve(result{err: ErrCancelled})
}

func (b *Broker) resolve(res result) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil || b.pending.source == "" {
		return ErrNoCapture
	}
	select {
	case b.pending.done <- res:
	default:
		return ErrNoCapture
	}
	return nil
}

// Pending reports whether a capture awaits the overlay.
func (b *Broker) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending != nil && b.pending.source != ""
}
