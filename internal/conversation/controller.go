// Package conversation runs the send cycle: append the user message and an
// empty assistant placeholder, stream the provider response into the
// placeholder, and settle with either the full answer or a visible error.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"chatdesk/internal/models"
	"chatdesk/internal/service/ai"
	"chatdesk/internal/thought"
)

var (
	// ErrEmptySubmission rejects a send with neither text nor attachments.
	ErrEmptySubmission = errors.New("message is empty")
	// ErrBusy rejects a send while another cycle is streaming.
	ErrBusy = errors.New("a response is already streaming")
)

// Store is the part of the session store a send cycle mutates.
type Store interface {
	AddMessage(ctx context.Context, msg models.Message) error
	UpdateMessage(ctx context.Context, id, content string) error
	SetThinkingTiming(ctx context.Context, id string, start time.Time, duration time.Duration) error
	Messages() []models.Message
	Settings() models.Settings
	// Hold keeps reloads from swapping the live list until release.
	Hold() (release func())
}

// SendRequest is one user submission.
type SendRequest struct {
	Text        string
	Attachments []models.Attachment
	// OnDelta, if set, sees every fragment and the accumulated content after
	// it was applied. Returning an error aborts the cycle.
	OnDelta func(delta, content string) error
	// OnStart, if set, is called once both messages are appended.
	OnStart func(user, placeholder models.Message)
}

// Outcome describes a cycle that got past validation.
type Outcome struct {
	User        models.Message
	Placeholder models.Message
	// Error is the appended assistant message when the cycle failed.
	Error *models.Message
}

// Controller serializes send cycles against one store.
type Controller struct {
	store    Store
	streamer ai.Streamer
	timeout  atomic.Int64
	busy     atomic.Bool
	now      func() time.Time
}

// NewController builds a controller. A zero timeout disables the bound.
func NewController(store Store, streamer ai.Streamer, timeout time.Duration) *Controller {
	c := &Controller{store: store, streamer: streamer, now: time.Now}
	c.SetTimeout(timeout)
	return c
}

// SetTimeout changes the bound on future cycles.
func (c *Controller) SetTimeout(timeout time.Duration) {
	c.timeout.Store(int64(timeout))
}

// IsLoading reports whether a cycle is in flight.
func (c *Controller) IsLoading() bool {
	return c.busy.Load()
}

// Exclusive runs fn while holding the same flag a send cycle takes, so fn
// and a cycle never overlap. It returns ErrBusy without calling fn when a
// cycle is in flight.
func (c *Controller) Exclusive(fn func() error) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)
	return fn()
}

// SendMessage runs one full cycle. Validation failures return an error and
// leave the store untouched. Once a cycle starts, the outcome is always
// returned; a failed cycle also returns its cause after appending the
// error message.
func (c *Controller) SendMessage(ctx context.Context, req SendRequest) (*Outcome, error) {
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return nil, ErrEmptySubmission
	}
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.busy.Store(false)
	release := c.store.Hold()
	defer release()

	if timeout := time.Duration(c.timeout.Load()); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	// settling writes must land even when the stream was cancelled
	settleCtx := context.WithoutCancel(ctx)

	out := &Outcome{User: models.NewMessage(models.RoleUser, req.Text, req.Attachments)}
	if err := c.store.AddMessage(settleCtx, out.User); err != nil {
		return out, c.fail(settleCtx, out, err)
	}
	history := c.store.Messages()

	out.Placeholder = models.NewMessage(models.RoleAssistant, "", nil)
	if err := c.store.AddMessage(settleCtx, out.Placeholder); err != nil {
		return out, c.fail(settleCtx, out, err)
	}
	if req.OnStart != nil {
		req.OnStart(out.User, out.Placeholder)
	}

	timing := &thinkingClock{now: c.now}
	content, err := c.stream(ctx, history, out.Placeholder.ID, req.OnDelta, timing)
	out.Placeholder.Content = content
	if start, duration, ok := timing.result(); ok {
		if terr := c.store.SetThinkingTiming(settleCtx, out.Placeholder.ID, start, duration); terr != nil {
			slog.Warn("record thinking time failed", "err", terr)
		}
		out.Placeholder.ThinkingStartTime = &start
		out.Placeholder.ThinkingDuration = duration.Milliseconds()
	}
	if err != nil {
		return out, c.fail(settleCtx, out, err)
	}
	slog.Debug("send cycle finished", "message_id", out.Placeholder.ID, "chars", len(content))
	return out, nil
}

func (c *Controller) stream(ctx context.Context, history []models.Message, placeholderID string, onDelta func(string, string) error, timing *thinkingClock) (string, error) {
	stream, err := c.streamer.StreamChat(ctx, history, c.store.Settings())
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var acc strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return acc.String(), err
		}
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return acc.String(), nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return acc.String(), ctxErr
			}
			return acc.String(), err
		}
		acc.WriteString(delta)
		content := acc.String()
		timing.observe(content)
		if err := c.store.UpdateMessage(ctx, placeholderID, content); err != nil {
			return content, err
		}
		if onDelta != nil {
			if err := onDelta(delta, content); err != nil {
				return content, err
			}
		}
	}
}

// fail appends the visible error message and returns cause.
func (c *Controller) fail(ctx context.Context, out *Outcome, cause error) error {
	slog.Warn("send cycle failed", "err", cause)
	msg := models.NewMessage(models.RoleAssistant, ErrorText(cause), nil)
	if err := c.store.AddMessage(ctx, msg); err != nil {
		slog.Error("append error message failed", "err", err)
	}
	out.Error = &msg
	return cause
}

// ErrorText is the assistant message shown for a failed cycle.
func ErrorText(err error) string {
	reason := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = "Request timed out"
	case errors.Is(err, context.Canceled):
		reason = "Request cancelled"
	}
	return fmt.Sprintf("Error: %s. Please check your settings.", reason)
}

// thinkingClock notes when a reasoning segment opened and closed in the
// accumulated content.
type thinkingClock struct {
	now   func() time.Time
	start time.Time
	end   time.Time
}

func (t *thinkingClock) observe(content string) {
	if !t.end.IsZero() {
		return
	}
	res := thought.Extract(content)
	if !res.Found {
		return
	}
	if t.start.IsZero() {
		t.start = t.now()
	}
	if !res.InProgress {
		t.end = t.now()
	}
}

func (t *thinkingClock) result() (time.Time, time.Duration, bool) {
	if t.start.IsZero() {
		return time.Time{}, 0, false
	}
	end := t.end
	if end.IsZero() {
		end = t.now()
	}
	return t.start, end.Sub(t.start), true
}
