package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebridge/termsheet-ingest/backend/model"
)

func TestProgressPercentages(t *testing.T) {
	tests := []struct {
		stage Stage
		want  int
	}{
		{StageExtractingPDF, 15},
		{StageSavingBlob, 30},
		{StageLLMExtraction, 50},
		{StageValidation, 80},
		{StagePersisting, 90},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			ev := Progress(tt.stage)
			assert.Equal(t, tt.want, ev.Progress)
			assert.False(t, ev.IsTerminal())
		})
	}
}

func TestTerminalEvents(t *testing.T) {
	resp := &model.ExtractionResponse{Filename: "a.pdf"}

	assert.True(t, Complete(resp).IsTerminal())
	assert.Equal(t, 100, Complete(resp).Progress)
	assert.True(t, ValidationFailed(resp).IsTerminal())
	assert.Equal(t, 100, ValidationFailed(resp).Progress)
	assert.True(t, Error("boom").IsTerminal())
}

func TestFrameFormat(t *testing.T) {
	frame, err := Progress(StageSavingBlob).Frame()
	require.NoError(t, err)
	assert.Equal(t, "data: {\"stage\":\"saving_blob\",\"progress\":30}\n\n", string(frame))

	frame, err = Error("PDF extraction failed: empty").Frame()
	require.NoError(t, err)
	assert.Equal(t, "data: {\"stage\":\"error\",\"message\":\"PDF extraction failed: empty\"}\n\n", string(frame))
}

func TestCompleteFrameCarriesPayload(t *testing.T) {
	resp := &model.ExtractionResponse{
		Filename:    "ts.pdf",
		SizeBytes:   42,
		Status:      model.StatusExtracted,
		ProductISIN: "XS3184638594",
	}
	frame, err := Complete(resp).Frame()
	require.NoError(t, err)

	s := string(frame)
	assert.True(t, strings.HasPrefix(s, "data: {\"stage\":\"complete\",\"progress\":100,\"data\":{"))
	assert.Contains(t, s, "\"product_isin\":\"XS3184638594\"")
	assert.Contains(t, s, "\"approved\":false")
	assert.True(t, strings.HasSuffix(s, "}\n\n"))
}

func TestReadEventsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sent := []ProgressEvent{
		Progress(StageExtractingPDF),
		Progress(StageSavingBlob),
		Error("LLM extraction failed: timeout"),
		// anything after the terminal event is ignored
		Progress(StagePersisting),
	}
	for _, ev := range sent {
		require.NoError(t, WriteFrame(&buf, ev))
	}

	got, err := ReadEvents(&buf)
	require.NoError(t, err)
	assert.Equal(t, sent[:3], got)
}

func TestReadEventsSkipsComments(t *testing.T) {
	in := ": keep-alive\n\ndata: {\"stage\":\"validation\",\"progress\":80}\n\n"

	got, err := ReadEvents(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StageValidation, got[0].Stage)
}

func TestReadEventsMalformed(t *testing.T) {
	_, err := ReadEvents(strings.NewReader("data: {not json}\n\n"))
	assert.Error(t, err)
}
