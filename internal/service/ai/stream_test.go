package ai

import (
	"errors"
	"io"
	"testing"

	"chatdesk/internal/models"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s DeltaReader) ([]string, error) {
	t.Helper()
	var out []string
	for {
		frag, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, frag)
	}
}

func TestDeltaStreamContent(t *testing.T) {
	reader := schema.StreamReaderFromArray([]*schema.Message{
		{Role: schema.Assistant, Content: "Hel"},
		{Role: schema.Assistant, Content: ""},
		{Role: schema.Assistant, Content: "lo"},
	})
	s := newDeltaStream(models.ProviderOpenAI, reader)
	defer s.Close()

	frags, err := drain(t, s)
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo"}, frags)

	_, err = s.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestDeltaStreamWrapsReasoning(t *testing.T) {
	reader := schema.StreamReaderFromArray([]*schema.Message{
		{Role: schema.Assistant, ReasoningContent: "let me "},
		{Role: schema.Assistant, ReasoningContent: "think"},
		{Role: schema.Assistant, Content: "42"},
	})
	s := newDeltaStream(models.ProviderDeepSeek, reader)
	defer s.Close()

	frags, err := drain(t, s)
	require.NoError(t, err)
	require.Equal(t, []string{"<think>let me ", "think", "</think>42"}, frags)
}

func TestDeltaStreamClosesDanglingReasoning(t *testing.T) {
	reader := schema.StreamReaderFromArray([]*schema.Message{
		{Role: schema.Assistant, ReasoningContent: "only thoughts"},
	})
	s := newDeltaStream(models.ProviderGemini, reader)
	defer s.Close()

	frags, err := drain(t, s)
	require.NoError(t, err)
	require.Equal(t, []string{"<think>only thoughts", "</think>"}, frags)
}

func TestDeltaStreamTransportError(t *testing.T) {
	reader, writer := schema.Pipe[*schema.Message](4)
	go func() {
		defer writer.Close()
		writer.Send(&schema.Message{Role: schema.Assistant, Content: "partial"}, nil)
		writer.Send(nil, errors.New("connection reset"))
	}()
	s := newDeltaStream(models.ProviderOpenRouter, reader)
	defer s.Close()

	frags, err := drain(t, s)
	require.Equal(t, []string{"partial"}, frags)
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	require.Equal(t, models.ProviderOpenRouter, transportErr.Provider)
	require.Contains(t, err.Error(), "connection reset")
}
