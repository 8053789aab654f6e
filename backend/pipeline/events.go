package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bluebridge/termsheet-ingest/backend/model"
)

// Stage names a step of the streaming protocol
type Stage string

const (
	StageExtractingPDF    Stage = "extracting_pdf"
	StageSavingBlob       Stage = "saving_blob"
	StageLLMExtraction    Stage = "llm_extraction"
	StageValidation       Stage = "validation"
	StagePersisting       Stage = "persisting"
	StageComplete         Stage = "complete"
	StageValidationFailed Stage = "validation_failed"
	StageError            Stage = "error"
)

// stageProgress is the fixed percentage reported when a stage starts
var stageProgress = map[Stage]int{
	StageExtractingPDF: 15,
	StageSavingBlob:    30,
	StageLLMExtraction: 50,
	StageValidation:    80,
	StagePersisting:    90,
}

// maxEvents bounds a single stream: five progress events and one terminal event
const maxEvents = 6

// ProgressEvent is one frame of the extraction stream. The populated fields depend on Stage:
// progress stages carry Progress, complete and validation_failed carry Progress=100 and Data,
// error carries Message only.
type ProgressEvent struct {
	Stage    Stage                     `json:"stage"`
	Progress int                       `json:"progress,omitempty"`
	Data     *model.ExtractionResponse `json:"data,omitempty"`
	Message  string                    `json:"message,omitempty"`
}

// Progress builds the "stage started" event
func Progress(stage Stage) ProgressEvent {
	return ProgressEvent{Stage: stage, Progress: stageProgress[stage]}
}

// Complete builds the successful terminal event
func Complete(resp *model.ExtractionResponse) ProgressEvent {
	return ProgressEvent{Stage: StageComplete, Progress: 100, Data: resp}
}

// ValidationFailed builds the terminal event for data that failed business rules
func ValidationFailed(resp *model.ExtractionResponse) ProgressEvent {
	return ProgressEvent{Stage: StageValidationFailed, Progress: 100, Data: resp}
}

// Error builds the terminal error event
func Error(message string) ProgressEvent {
	return ProgressEvent{Stage: StageError, Message: message}
}

// IsTerminal reports whether no event may follow this one
func (e ProgressEvent) IsTerminal() bool {
	switch e.Stage {
	case StageComplete, StageValidationFailed, StageError:
		return true
	}
	return false
}

// Frame renders the event as a server-sent-events frame
func (e ProgressEvent) Frame() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// WriteFrame writes the event frame to w
func WriteFrame(w io.Writer, e ProgressEvent) error {
	frame, err := e.Frame()
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadEvents decodes frames from r until EOF or a terminal event
func ReadEvents(r io.Reader) ([]ProgressEvent, error) {
	var events []ProgressEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev ProgressEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			return events, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
		if ev.IsTerminal() {
			return events, nil
		}
	}
	return events, scanner.Err()
}
