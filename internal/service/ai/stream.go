package ai

import (
	"errors"
	"io"
	"strings"

	"chatdesk/internal/models"
	"chatdesk/internal/thought"

	"github.com/cloudwego/eino/schema"
)

// DeltaReader yields text fragments in arrival order. Recv returns io.EOF
// once the response is complete. It is single-consumer and forward-only.
type DeltaReader interface {
	Recv() (string, error)
	Close()
}

// DeltaStream adapts an eino message stream into text fragments. Reasoning
// deltas are inlined between thinking markers so the content carries them.
type DeltaStream struct {
	provider  models.Provider
	reader    *schema.StreamReader[*schema.Message]
	reasoning bool
	done      bool
}

func newDeltaStream(provider models.Provider, reader *schema.StreamReader[*schema.Message]) *DeltaStream {
	return &DeltaStream{provider: provider, reader: reader}
}

// Recv returns the next non-empty fragment.
func (s *DeltaStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		chunk, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			if s.reasoning {
				s.reasoning = false
				return thought.Close, nil
			}
			return "", io.EOF
		}
		if err != nil {
			s.done = true
			return "", &TransportError{Provider: s.provider, Err: err}
		}
		if chunk == nil {
			continue
		}
		if fragment := s.fragment(chunk); fragment != "" {
			return fragment, nil
		}
	}
}

func (s *DeltaStream) fragment(chunk *schema.Message) string {
	var b strings.Builder
	if chunk.ReasoningContent != "" {
		if !s.reasoning {
			b.WriteString(thought.Open)
			s.reasoning = true
		}
		b.WriteString(chunk.ReasoningContent)
	}
	if chunk.Content != "" {
		if s.reasoning {
			b.WriteString(thought.Close)
			s.reasoning = false
		}
		b.WriteString(chunk.Content)
	}
	return b.String()
}

// Close releases the underlying connection.
func (s *DeltaStream) Close() {
	s.done = true
	s.reader.Close()
}
