package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	rferrors "github.com/YuminosukeSato/rforest/pkg/errors"
)

// TestLoggerInterface tests the Logger interface implementation
func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationFit)
	testLogger.Warn("warning message", TreeIndexKey, 3)
	testLogger.Error("error message", fmt.Errorf("test error"), FailedKey, 1)

	if buffer.String() == "" {
		t.Fatal("Expected log output, got empty string")
	}

	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}

	if !testLogger.ContainsField("key1", "value1") {
		t.Error("Expected field key1=value1 not found")
	}
	if !testLogger.ContainsField("number", 42.0) { // JSON unmarshaling converts numbers to float64
		t.Error("Expected field number=42 not found")
	}
	if !testLogger.ContainsField(ErrorKey, "test error") {
		t.Error("Expected leading error to be captured under the error key")
	}
	if got := testLogger.CountLevel(LevelWarn); got != 1 {
		t.Errorf("CountLevel(Warn) = %d, want 1", got)
	}
}

// TestLoggerWith tests the With method for context-aware logging
func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(
		ModelNameKey, "RandomForestClassifier",
		ComponentKey, "ensemble",
	)
	contextLogger.Info("contextual message", OperationKey, OperationFit)

	if !testLogger.ContainsField(ModelNameKey, "RandomForestClassifier") {
		t.Error("Model name context not found")
	}
	if !testLogger.ContainsField(ComponentKey, "ensemble") {
		t.Error("Component context not found")
	}
}

// TestLoggerEnabled tests the Enabled method
func TestLoggerEnabled(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	ctx := context.Background()

	if !testLogger.Enabled(ctx, LevelError) {
		t.Error("Logger should be enabled for Error level")
	}
	if testLogger.Enabled(ctx, LevelDebug) {
		t.Error("Logger should not be enabled for Debug level")
	}

	testLogger.Debug("this should not appear")
	testLogger.Info("this should appear")

	if testLogger.ContainsMessage("this should not appear") {
		t.Error("Debug message should not appear when level is Info")
	}
	if !testLogger.ContainsMessage("this should appear") {
		t.Error("Info message should appear when level is Info")
	}
}

func TestLoggerProviderIntegration(t *testing.T) {
	provider, buffer := NewTestLoggerProvider(LevelDebug)

	provider.GetLogger().Info("provider test message")
	provider.GetLoggerWithName("coordinator").Info("named logger message")

	out := buffer.String()
	for _, want := range []string{"provider test message", "named logger message", "coordinator"} {
		if !strings.Contains(out, want) {
			t.Errorf("%q not found in provider output", want)
		}
	}
}

func TestConcurrentLogging(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	const goroutines, perGoroutine = 4, 5
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				testLogger.Info("tree fitted", TreeIndexKey, id*perGoroutine+j)
			}
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}
	if len(entries) != goroutines*perGoroutine {
		t.Errorf("Expected %d log entries, got %d", goroutines*perGoroutine, len(entries))
	}
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo).With(ModelNameKey, "RandomForestClassifier")

	logger.Debug("hidden")
	logger.Info("fit finished", TreesKey, 10, WorkersKey, 4)

	fitErr := rferrors.NewEnsembleFitError("Fit", 10, 0, []rferrors.TaskFailure{{Index: 2, Err: errors.New("boom")}})
	logger.Error("fit failed", fitErr, TreeIndexKey, 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}

	var info map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &info); err != nil {
		t.Fatal(err)
	}
	if info["message"] != "fit finished" || info[TreesKey] != 10.0 || info[ModelNameKey] != "RandomForestClassifier" {
		t.Errorf("unexpected info entry: %v", info)
	}

	var errEntry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &errEntry); err != nil {
		t.Fatal(err)
	}
	if errEntry["level"] != "error" {
		t.Errorf("level = %v, want error", errEntry["level"])
	}
	if _, ok := errEntry[StacktraceKey]; !ok {
		t.Error("expected stack trace extracted from cockroachdb error")
	}
	detail, ok := errEntry[ErrorKey+".detail"].(map[string]interface{})
	if !ok || detail["type"] != "EnsembleFitError" {
		t.Errorf("expected structured error detail, got %v", errEntry[ErrorKey+".detail"])
	}

	if !logger.Enabled(context.Background(), LevelWarn) || logger.Enabled(context.Background(), LevelDebug) {
		t.Error("Enabled does not follow the configured level")
	}
}

func TestFromZerolog(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf).Level(zerolog.WarnLevel).With().Str("service", "trainer").Logger()
	logger := FromZerolog(zl)

	logger.Info("dropped")
	logger.Warn("tree retried", TreeIndexKey, 7)

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "trainer" || entry[TreeIndexKey] != 7.0 {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestInstallWarningHook(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)
	InstallWarningHook(testLogger)
	defer rferrors.SetZerologWarnFunc(nil)

	rferrors.Warn(rferrors.NewTreeExclusionWarning(5, 2, errors.New("bad input")))

	if !testLogger.ContainsMessage("tree 5 excluded") {
		t.Error("warning was not routed to the logger")
	}
	if testLogger.CountLevel(LevelWarn) != 1 {
		t.Error("warning should be logged at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
