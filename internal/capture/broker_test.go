package capture

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"chatdesk/internal/models"

	"github.com/stretchr/testify/require"
)

type staticCapturer struct {
	image []byte
	err   error
}

func (s staticCapturer) Capture(context.Context) ([]byte, error) { return s.image, s.err }

func waitPending(t *testing.T, b *Broker) {
	t.Helper()
	require.Eventually(t, b.Pending, 2*time.Second, 5*time.Millisecond)
}

func TestBrokerComplete(t *testing.T) {
	b := NewBroker(staticCapturer{image: []byte("full-screen")})
	b.now = func() time.Time { return time.UnixMilli(1700000000000) }

	type res struct {
		att models.Attachment
		err error
	}
	done := make(chan res, 1)
	go func() {
		att, err := b.Request(context.Background())
		done <- res{att, err}
	}()
	waitPending(t, b)

	src, err := b.Source()
	require.NoError(t, err)
	_, data, err := models.DecodeDataURL(src)
	require.NoError(t, err)
	require.Equal(t, "full-screen", string(data))

	cropped := models.NewAttachment("x", "image/png", []byte("cropped")).Content
	require.NoError(t, b.Complete(cropped))

	got := <-done
	require.NoError(t, got.err)
	require.Equal(t, "screenshot-1700000000000.png", got.att.Name)
	require.Equal(t, "image/png", got.att.MimeType)
	require.Equal(t, cropped, got.att.Content)
	require.False(t, b.Pending())
}

func TestBrokerCancel(t *testing.T) {
	b := NewBroker(staticCapturer{image: []byte("img")})
	done := make(chan error, 1)
	go func() {
		_, err := b.Request(context.Background())
		done <- err
	}()
	waitPending(t, b)

	_, err := b.Request(context.Background())
	require.ErrorIs(t, err, ErrCaptureBusy)

	require.NoError(t, b.Cancel())
	require.ErrorIs(t, <-done, ErrCancelled)
	require.ErrorIs(t, b.Cancel(), ErrNoCapture)
}

func TestBrokerRejectsNonImage(t *testing.T) {
	b := NewBroker(staticCapturer{image: []byte("img")})
	go func() { _, _ = b.Request(context.Background()) }()
	waitPending(t, b)
	defer b.Cancel()

	err := b.Complete(models.NewAttachment("a.txt", "text/plain", []byte("hi")).Content)
	require.ErrorIs(t, err, ErrNotAnImage)
	require.True(t, b.Pending())
}

func TestBrokerContextEnds(t *testing.T) {
	b := NewBroker(staticCapturer{image: []byte("img")})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.Request(ctx)
		done <- err
	}()
	waitPending(t, b)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.False(t, b.Pending())
}

func TestBrokerCaptureFailure(t *testing.T) {
	boom := errors.New("no display")
	b := NewBroker(staticCapturer{err: boom})
	_, err := b.Request(context.Background())
	require.ErrorIs(t, err, boom)
	require.False(t, b.Pending())
	require.ErrorIs(t, b.Complete("data:image/png;base64,AA=="), ErrNoCapture)
}

func TestCommandCapturer(t *testing.T) {
	if _, err := exec.LookPath("printf"); err != nil {
		t.Skip("printf not available")
	}
	out, err := CommandCapturer{Command: []string{"printf", "png-bytes"}}.Capture(context.Background())
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(out))

	_, err = CommandCapturer{}.Capture(context.Background())
	require.Error(t, err)
}
