package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/signalsfoundry/antenna-tracker/internal/logging"
	"github.com/signalsfoundry/antenna-tracker/telemetry"
)

type scriptedSource struct {
	steps []func() (telemetry.Message, bool, error)
}

func (s *scriptedSource) Receive() (telemetry.Message, bool, error) {
	if len(s.steps) == 0 {
		return telemetry.Message{}, false, telemetry.ErrLinkClosed
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step()
}

func TestPrintLoopWritesIndentedJSON(t *testing.T) {
	good, err := telemetry.Decode([]byte(`{"euler":[1,2,3]}`), "test")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	src := &scriptedSource{steps: []func() (telemetry.Message, bool, error){
		func() (telemetry.Message, bool, error) { return telemetry.Message{}, false, nil },
		func() (telemetry.Message, bool, error) {
			return telemetry.Message{}, false, fmt.Errorf("%w: bad", telemetry.ErrMalformed)
		},
		func() (telemetry.Message, bool, error) { return good, true, nil },
	}}

	var out bytes.Buffer
	if err := printLoop(src, &out, logging.Noop()); err != nil {
		t.Fatalf("printLoop: %v", err)
	}
	want := "{\n  \"euler\": [\n    1,\n    2,\n    3\n  ]\n}\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}
