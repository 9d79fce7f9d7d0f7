package logging

import (
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func resetContext() {
	deviceName.Store("")
	scenario.Store("")
	atomic.StoreInt64(&outputSeq, 0)
	atomic.StoreInt64(&trackSeq, 0)
}

func TestPlaybackContextFields(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)
	resetContext()

	SetDevice("null")
	OutputOpened()
	NextTrack()
	NextTrack()
	SetScenario("xfade")
	Infof("hello")

	if recorded.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", recorded.Len())
	}
	fields := recorded.All()[0].ContextMap()
	if fields["device"] != "null" {
		t.Fatalf("device = %v, want null", fields["device"])
	}
	if fields["output"] != int64(1) {
		t.Fatalf("output = %v, want 1", fields["output"])
	}
	if fields["track"] != int64(2) {
		t.Fatalf("track = %v, want 2", fields["track"])
	}
	if fields["scenario"] != "xfade" {
		t.Fatalf("scenario = %v, want xfade", fields["scenario"])
	}
}

func TestScenarioOmittedUntilSet(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)
	resetContext()

	Infof("before open")
	fields := recorded.All()[0].ContextMap()
	if _, ok := fields["scenario"]; ok {
		t.Fatalf("unexpected scenario field %v", fields["scenario"])
	}
	if fields["device"] != "none" {
		t.Fatalf("device = %v, want none", fields["device"])
	}
}

func TestSetDeviceIgnoresBlank(t *testing.T) {
	resetContext()
	SetDevice("wav")
	SetDevice("   ")
	if got, _ := deviceName.Load().(string); got != "wav" {
		t.Fatalf("expected blank name to be ignored, got %q", got)
	}
}

func TestInitRejectsUnknownFormat(t *testing.T) {
	if err := Init(Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if err := Init(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	core, recorded := observer.New(zapcore.WarnLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	Infof("dropped")
	Warnf("kept %d", 1)
	if recorded.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", recorded.Len())
	}
	if recorded.All()[0].Message != "kept 1" {
		t.Fatalf("unexpected message %q", recorded.All()[0].Message)
	}
}
