package logging

import "testing"

func TestNew(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := New(level, false)
		if err != nil {
			t.Errorf("New(%q) error = %v", level, err)
			continue
		}
		logger.Sync()
	}
}

func TestNewDevelopment(t *testing.T) {
	logger, err := New("debug", true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Sync()
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New("loud", false); err == nil {
		t.Fatal("expected error for invalid level")
	}
}
