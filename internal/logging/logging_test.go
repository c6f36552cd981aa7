package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if _, err := Setup("chatty", false); err == nil {
		t.Error("expected an error")
	}

	sugar, err := Setup("warn", false)
	if err != nil {
		t.Fatal(err)
	}
	if sugar.Desugar().Core().Enabled(zap.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
}

func TestGocronKeepsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := Gocron(zap.New(core).Sugar())

	logger.Error("job failed", "name", "bot-responder", "attempt", 2)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if entries[0].Message != "job failed" || fields["name"] != "bot-responder" || fields["attempt"] != int64(2) {
		t.Errorf("unexpected entry %+v %v", entries[0], fields)
	}
	if entries[0].LoggerName != "scheduler" {
		t.Errorf("logger name %q", entries[0].LoggerName)
	}
}
