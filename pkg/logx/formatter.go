package logx

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Formatter is the interface for log formatters
type Formatter interface {
	Format(entry *LogEntry) ([]byte, error)
}

// LogEntry represents a single log entry
type LogEntry struct {
	Level     Level
	Message   string
	Fields    Fields
	Error     error
	Timestamp time.Time
}

// Fields is a map of structured data
type Fields map[string]interface{}

// ConsoleFormatter renders human-readable, optionally colored lines
type ConsoleFormatter struct {
	config *Config
}

// NewConsoleFormatter creates a console formatter
func NewConsoleFormatter(config *Config) *ConsoleFormatter {
	return &ConsoleFormatter{config: config}
}

var levelColors = map[Level]string{
	LevelDebug: "\033[36m", // cyan
	LevelInfo:  "\033[32m", // green
	LevelWarn:  "\033[33m", // yellow
	LevelError: "\033[31m", // red
	LevelFatal: "\033[35m", // magenta
}

const colorReset = "\033[0m"

// Format implements Formatter
func (f *ConsoleFormatter) Format(entry *LogEntry) ([]byte, error) {
	var b strings.Builder

	b.WriteString(entry.Timestamp.Format(f.config.TimeFormat))
	b.WriteString(" ")

	level := fmt.Sprintf("%-5s", entry.Level.String())
	if f.config.EnableColors {
		if color, ok := levelColors[entry.Level]; ok {
			level = color + level + colorReset
		}
	}
	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(entry.Message)

	for k, v := range entry.Fields {
		b.WriteString(fmt.Sprintf(" %s=%v", k, v))
	}

	b.WriteString("\n")
	return []byte(b.String()), nil
}

// JSONFormatter renders one JSON object per line
type JSONFormatter struct {
	config *Config
}

// NewJSONFormatter creates a JSON formatter
func NewJSONFormatter(config *Config) *JSONFormatter {
	return &JSONFormatter{config: config}
}

// Format implements Formatter
func (f *JSONFormatter) Format(entry *LogEntry) ([]byte, error) {
	payload := make(map[string]interface{}, len(entry.Fields)+3)
	payload["time"] = entry.Timestamp.Format(f.config.TimeFormat)
	payload["level"] = entry.Level.String()
	payload["message"] = entry.Message
	for k, v := range entry.Fields {
		payload[k] = v
	}
	if entry.Error != nil {
		payload["error"] = entry.Error.Error()
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
