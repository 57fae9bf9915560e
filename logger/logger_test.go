package logger

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want logrus.Level
	}{
		{"", logrus.InfoLevel},
		{"report", logrus.InfoLevel},
		{" DEBUG ", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
	}
	for _, c := range cases {
		got, err := parseLevel(c.in)
		if err != nil || got != c.want {
			t.Errorf("parseLevel(%q) = %v, %v want %v", c.in, got, err, c.want)
		}
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Errorf("expected error for unknown level")
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "gateway.log")

	log := Logger()
	if err := log.Configure("debug", "text", path, 0); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	log.WithComponent("gateway").Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") || !strings.Contains(string(data), "component=gateway") {
		t.Fatalf("unexpected log output: %s", data)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v", log.GetLevel())
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	if err := Logger().Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestWarnAndErrorAreCounted(t *testing.T) {
	log := Logger()
	log.SetOutput(io.Discard)

	before := snapshotCounters()
	log.WithComponent("feed").Warn("w")
	log.WithComponent("feed").Error("e")
	log.WithFields(Fields{"x": 1}).Warn("no component")
	after := snapshotCounters()

	if after.warns-before.warns != 1 {
		t.Fatalf("warns delta = %d", after.warns-before.warns)
	}
	if after.errors-before.errors != 1 {
		t.Fatalf("errors delta = %d", after.errors-before.errors)
	}
	if after.components["feed"]-before.components["feed"] != 2 {
		t.Fatalf("component issues delta = %d", after.components["feed"]-before.components["feed"])
	}
}

func TestChannelCounters(t *testing.T) {
	before := snapshotCounters()
	IncrementFeedFrame(100)
	IncrementFeedFrame(20)
	IncrementCandlePublished(64)
	after := snapshotCounters()

	if after.feedFrames-before.feedFrames != 2 {
		t.Fatalf("feed frames delta = %d", after.feedFrames-before.feedFrames)
	}
	if got := after.channels["feed_ws"]["bytes"] - before.channels["feed_ws"]["bytes"]; got != 120 {
		t.Fatalf("feed bytes delta = %d", got)
	}
	if after.candlesPublished-before.candlesPublished != 1 {
		t.Fatalf("candles delta = %d", after.candlesPublished-before.candlesPublished)
	}
}

func TestDashboardBodyIsValidJSON(t *testing.T) {
	body := dashboardBody("CCGateway", "eu-central-1")
	var parsed struct {
		Widgets []json.RawMessage `json:"widgets"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		t.Fatalf("dashboard body invalid: %v\n%s", err, body)
	}
	if len(parsed.Widgets) != 3 {
		t.Fatalf("expected 3 widgets, got %d", len(parsed.Widgets))
	}
	if !strings.Contains(body, `"eu-central-1"`) {
		t.Fatalf("region missing from dashboard: %s", body)
	}
}

func TestPublishWithoutClientIsNoop(t *testing.T) {
	if CloudWatchEnabled() {
		t.Skip("CloudWatch client configured")
	}
	PublishMetrics(context.Background(), nil)
}
