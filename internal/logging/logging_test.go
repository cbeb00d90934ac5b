package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestInitWritesJSONFieldMap(t *testing.T) {
	var buf bytes.Buffer
	logger := Init("debug", &buf)
	logger.WithField("permit_id", "p-1").Debug("hello")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	if line["message"] != "hello" || line["permit_id"] != "p-1" {
		t.Fatalf("unexpected line %v", line)
	}
	if _, ok := line["@timestamp"]; !ok {
		t.Fatalf("missing @timestamp: %v", line)
	}
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := Init("chatty", &buf)
	logger.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info: %s", buf.String())
	}
}
