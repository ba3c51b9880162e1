package util

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// saveLoggerState saves the current logger state for restoration
func saveLoggerState() (io.Writer, logrus.Level, logrus.Formatter) {
	return Logger.Out, Logger.Level, Logger.Formatter
}

// restoreLoggerState restores the logger to its previous state
func restoreLoggerState(out io.Writer, level logrus.Level, formatter logrus.Formatter) {
	Logger.SetOutput(out)
	Logger.SetLevel(level)
	Logger.SetFormatter(formatter)
}

func TestSetLogLevel(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"invalid", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := SetLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetLogLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
		})
	}
}

func TestDefaultLevelIsQuiet(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	Logger.SetLevel(logrus.WarnLevel)

	Infof("should not appear")
	if buf.Len() != 0 {
		t.Errorf("info output at warn level: %s", buf.String())
	}

	Warnf("warn %d", 1)
	if !strings.Contains(buf.String(), "warn 1") {
		t.Errorf("expected warn output, got: %s", buf.String())
	}
}

func TestWithCommandJSON(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetJSONFormat()
	SetLogLevel("debug")

	WithCommand("console1", "cp a b\nrm c").Debug("sending")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["device"] != "console1" {
		t.Errorf("device = %v", entry["device"])
	}
	if entry["command"] != `cp a b\nrm c` {
		t.Errorf("command = %v", entry["command"])
	}
}

func TestWithOperation(t *testing.T) {
	entry := WithOperation("console1", "commit")
	if entry.Data["device"] != "console1" || entry.Data["operation"] != "commit" {
		t.Errorf("fields = %v", entry.Data)
	}
}

func TestWithDevice(t *testing.T) {
	entry := WithDevice("console1")
	if entry.Data["device"] != "console1" {
		t.Errorf("fields = %v", entry.Data)
	}
}
