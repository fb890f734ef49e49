package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// consoleSink is the writer shared by a ConsoleLogger and its traced copies.
// Workers log concurrently, so every line goes out under one lock.
type consoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *consoleSink) writeLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, line+"\n")
}

type consoleStyles struct {
	levels map[LogLevel]lipgloss.Style
	dim    lipgloss.Style
	key    lipgloss.Style
}

func newConsoleStyles(w io.Writer) *consoleStyles {
	r := lipgloss.NewRenderer(w)
	return &consoleStyles{
		levels: map[LogLevel]lipgloss.Style{
			DEBUG: r.NewStyle().Foreground(lipgloss.Color("#7C7C7C")),
			INFO:  r.NewStyle().Foreground(lipgloss.Color("#5A9BF6")),
			WARN:  r.NewStyle().Foreground(lipgloss.Color("#F0C674")).Bold(true),
			ERROR: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		},
		dim: r.NewStyle().Foreground(lipgloss.Color("#626262")),
		key: r.NewStyle().Foreground(lipgloss.Color("#8A8A8A")),
	}
}

// ConsoleLogger writes human readable lines, by default to stderr so they
// never mix with command output on stdout
type ConsoleLogger struct {
	sink      *consoleSink
	styles    *consoleStyles
	levelMu   *sync.RWMutex
	level     *LogLevel
	traceID   string
	timestamp bool
	redact    bool
}

// ConsoleLoggerConfig contains configuration for console logger
type ConsoleLoggerConfig struct {
	Writer           io.Writer
	Level            LogLevel
	ColorEnabled     bool
	TimestampEnabled bool
	RedactSensitive  bool
}

// NewConsoleLogger creates a new console logger
func NewConsoleLogger(config ConsoleLoggerConfig) *ConsoleLogger {
	if config.Writer == nil {
		config.Writer = os.Stderr
	}
	var styles *consoleStyles
	if config.ColorEnabled {
		styles = newConsoleStyles(config.Writer)
	}
	level := config.Level
	return &ConsoleLogger{
		sink:      &consoleSink{w: config.Writer},
		styles:    styles,
		levelMu:   &sync.RWMutex{},
		level:     &level,
		timestamp: config.TimestampEnabled,
		redact:    config.RedactSensitive,
	}
}

// formatLine renders "15:04:05 WARN  [run-id] message key=value key2="a b""
func (l *ConsoleLogger) formatLine(level LogLevel, msg string, fields []Field) string {
	var sb strings.Builder

	if l.timestamp {
		sb.WriteString(l.paint(l.dimStyle(), time.Now().Format("15:04:05")))
		sb.WriteByte(' ')
	}
	sb.WriteString(l.paint(l.levelStyle(level), fmt.Sprintf("%-5s", level.String())))
	sb.WriteByte(' ')
	if l.traceID != "" {
		sb.WriteString(l.paint(l.dimStyle(), "["+shortTraceID(l.traceID)+"]"))
		sb.WriteByte(' ')
	}

	if l.redact {
		msg = Redact(msg)
	}
	sb.WriteString(msg)

	for _, field := range fields {
		value := fmt.Sprint(field.Value)
		if l.redact {
			value = Redact(value)
		}
		if value == "" || strings.ContainsAny(value, " \t\"=") {
			value = fmt.Sprintf("%q", value)
		}
		sb.WriteByte(' ')
		sb.WriteString(l.paint(l.keyStyle(), field.Key+"="))
		sb.WriteString(value)
	}
	return sb.String()
}

func (l *ConsoleLogger) paint(style *lipgloss.Style, s string) string {
	if style == nil {
		return s
	}
	return style.Render(s)
}

func (l *ConsoleLogger) levelStyle(level LogLevel) *lipgloss.Style {
	if l.styles == nil {
		return nil
	}
	s, ok := l.styles.levels[level]
	if !ok {
		return nil
	}
	return &s
}

func (l *ConsoleLogger) dimStyle() *lipgloss.Style {
	if l.styles == nil {
		return nil
	}
	return &l.styles.dim
}

func (l *ConsoleLogger) keyStyle() *lipgloss.Style {
	if l.styles == nil {
		return nil
	}
	return &l.styles.key
}

func (l *ConsoleLogger) enabled(level LogLevel) bool {
	l.levelMu.RLock()
	defer l.levelMu.RUnlock()
	return level >= *l.level
}

func (l *ConsoleLogger) log(level LogLevel, msg string, fields []Field) {
	if !l.enabled(level) {
		return
	}
	l.sink.writeLine(l.formatLine(level, msg, fields))
}

func (l *ConsoleLogger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields) }
func (l *ConsoleLogger) Info(msg string, fields ...Field)  { l.log(INFO, msg, fields) }
func (l *ConsoleLogger) Warn(msg string, fields ...Field)  { l.log(WARN, msg, fields) }
func (l *ConsoleLogger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields) }

// WithTraceID returns a logger sharing the writer and level with l
func (l *ConsoleLogger) WithTraceID(traceID string) Logger {
	c := *l
	c.traceID = traceID
	return &c
}

// WithContext returns a new logger that extracts trace ID from context
func (l *ConsoleLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" || traceID == l.traceID {
		return l
	}
	return l.WithTraceID(traceID)
}

// SetLevel changes the minimum level for l and every traced copy of it
func (l *ConsoleLogger) SetLevel(level LogLevel) {
	l.levelMu.Lock()
	defer l.levelMu.Unlock()
	*l.level = level
}

func (l *ConsoleLogger) Close() error {
	return nil
}

// run IDs are uuids; eight characters are enough to tell runs apart
func shortTraceID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
