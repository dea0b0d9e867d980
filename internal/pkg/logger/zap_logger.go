package logger

import (
	"bufio"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ILogger interface {
	Debug(module, message string, details map[string]interface{})
	Info(module, message string, details map[string]interface{})
	Warn(module, message string, details map[string]interface{})
	Error(module, message string, details map[string]interface{})
	Sync() error
	GetLogs(level string, limit, offset int) ([]LogEntry, error)
}

type ZapLogger struct {
	logger   *zap.Logger
	filePath string
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.MessageKey = "message"
	cfg.LevelKey = "level"
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func newFileCore(logFilePath string) zapcore.Core {
	rotator := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    10,   // Megabytes
		MaxBackups: 5,    // Files
		MaxAge:     30,   // Days
		Compress:   true, // gzip
	}

	return zapcore.NewCore(jsonEncoder(), zapcore.AddSync(rotator), zap.InfoLevel)
}

func NewZapLogger(logFilePath string, isProd bool) *ZapLogger {
	var consoleEncoder zapcore.Encoder
	if isProd {
		consoleEncoder = jsonEncoder()
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), zap.DebugLevel)
	core := zapcore.NewTee(newFileCore(logFilePath), consoleCore)

	// CallerSkip 1 points the caller field at the code calling the wrapper.
	return &ZapLogger{
		logger:   zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		filePath: logFilePath,
	}
}

// NewIsolatedLogger creates a logger that ONLY writes to the file, not console.
// Used for dedicated domain logs (pipeline phases) to keep the main log clean.
func NewIsolatedLogger(logFilePath string) *ZapLogger {
	return &ZapLogger{
		logger:   zap.New(newFileCore(logFilePath), zap.AddCaller(), zap.AddCallerSkip(1)),
		filePath: logFilePath,
	}
}

func structuredFields(module string, details map[string]interface{}) []zap.Field {
	if details == nil {
		details = make(map[string]interface{})
	}
	return []zap.Field{zap.String("module", module), zap.Any("details", details)}
}

func (l *ZapLogger) Debug(module, message string, details map[string]interface{}) {
	l.logger.Debug(message, structuredFields(module, details)...)
}

func (l *ZapLogger) Info(module, message string, details map[string]interface{}) {
	l.logger.Info(message, structuredFields(module, details)...)
}

func (l *ZapLogger) Warn(module, message string, details map[string]interface{}) {
	l.logger.Warn(message, structuredFields(module, details)...)
}

func (l *ZapLogger) Error(module, message string, details map[string]interface{}) {
	fields := structuredFields(module, details)
	if err, ok := details["error"]; ok {
		fields = append(fields, zap.Any("error_ref", err))
	}
	l.logger.Error(message, fields...)
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

// Log reading for the admin endpoint.

type LogEntry struct {
	Id        string                 `json:"id"`
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Module    string                 `json:"module,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// GetLogs reads the active log file newest-first with level filtering and
// pagination. Reading the whole file is acceptable for the admin tail; the
// rotator keeps the active file small.
func (l *ZapLogger) GetLogs(level string, limit, offset int) ([]LogEntry, error) {
	entries, err := l.readEntries(strings.ToUpper(level))
	if err != nil {
		return nil, err
	}

	// Newest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return paginate(entries, limit, offset), nil
}

func (l *ZapLogger) readEntries(level string) ([]LogEntry, error) {
	file, err := os.Open(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []LogEntry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		var entry LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // partial write from a rotation, skip
		}
		if level != "" && entry.Level != level {
			continue
		}
		if entry.Id == "" {
			entry.Id = fmt.Sprintf("%x", md5.Sum(line))
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}

func paginate(entries []LogEntry, limit, offset int) []LogEntry {
	if offset >= len(entries) {
		return []LogEntry{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}
