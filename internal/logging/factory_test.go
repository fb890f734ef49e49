package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	if cfg.Level != INFO || !cfg.EnableConsole || !cfg.RedactSensitive {
		t.Errorf("DefaultLogConfig() = %+v", cfg)
	}
	if cfg.MaxFileSize != 100*1024*1024 {
		t.Errorf("MaxFileSize = %d", cfg.MaxFileSize)
	}
}

func TestNewLogger_PicksImplementation(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  LogConfig
		want string
	}{
		{"nothing enabled", LogConfig{}, "*logging.NoOpLogger"},
		{"console", LogConfig{EnableConsole: true}, "*logging.ConsoleLogger"},
		{"file", LogConfig{OutputFile: filepath.Join(dir, "a.log")}, "*logging.FileLogger"},
		{"both", LogConfig{EnableConsole: true, OutputFile: filepath.Join(dir, "b.log")}, "*logging.MultiLogger"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			t.Cleanup(func() { _ = logger.Close() })

			var got string
			switch logger.(type) {
			case *NoOpLogger:
				got = "*logging.NoOpLogger"
			case *ConsoleLogger:
				got = "*logging.ConsoleLogger"
			case *FileLogger:
				got = "*logging.FileLogger"
			case *MultiLogger:
				got = "*logging.MultiLogger"
			}
			if got != tt.want {
				t.Errorf("NewLogger() = %T, want %s", logger, tt.want)
			}
		})
	}
}

func TestNewLogger_UnwritableFile(t *testing.T) {
	// a regular file where a directory is expected fails for root too
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLogger(LogConfig{OutputFile: filepath.Join(blocker, "sub", "icdl.log")}); err == nil {
		t.Error("expected an error for an unwritable log path")
	}
}

func TestNewDebugLoggerWithTransport(t *testing.T) {
	logger, transport, err := NewDebugLoggerWithTransport(LogConfig{EnableConsole: true})
	if err != nil {
		t.Fatal(err)
	}
	_ = logger.Close()
	if transport != nil {
		t.Error("transport built without EnableDebug")
	}

	logger, transport, err = NewDebugLoggerWithTransport(LogConfig{Level: DEBUG, EnableDebug: true})
	if err != nil {
		t.Fatal(err)
	}
	_ = logger.Close()
	if transport == nil {
		t.Error("EnableDebug should build a DebugTransport")
	}
}
