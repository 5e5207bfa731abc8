package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_Defaults(t *testing.T) {
	log := New(LoggingConfig{Level: "bogus"})
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("formatter = %T, want text", log.Formatter)
	}
}

func TestNew_JSONDebug(t *testing.T) {
	log := New(LoggingConfig{Level: "debug", Format: "JSON", Output: "stdout"})
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("formatter = %T, want json", log.Formatter)
	}
}

func TestWithComponent_TagsEntries(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf).WithComponent("chain")

	log.WithField("function", "get-all-products").WithError(errors.New("boom")).Warn("call failed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["component"] != "chain" {
		t.Errorf("component = %v, want chain", entry["component"])
	}
	if entry["function"] != "get-all-products" {
		t.Errorf("function = %v", entry["function"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v", entry["error"])
	}
	if entry["level"] != "warning" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestSetLogLevel(t *testing.T) {
	log := NewDefault("test")
	if err := log.SetLogLevel("error"); err != nil {
		t.Fatalf("SetLogLevel() error = %v", err)
	}
	if log.GetLevel() != logrus.ErrorLevel {
		t.Errorf("level = %v, want error", log.GetLevel())
	}
	if err := log.SetLogLevel("loud"); err == nil {
		t.Error("SetLogLevel() should reject unknown level")
	}
}

func TestNewNop_Discards(t *testing.T) {
	log := NewNop()
	log.Error("nothing to see")
	if log.Component() != "" {
		t.Errorf("component = %q, want empty", log.Component())
	}
}
