package sql

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// SQLLogger provides GORM-style SQL debug logging
type SQLLogger struct {
	enabled bool
	mu      sync.RWMutex
}

// NewSQLLogger creates a new SQL logger
func NewSQLLogger(enabled bool) *SQLLogger {
	return &SQLLogger{
		enabled: enabled,
	}
}

// IsEnabled returns whether SQL logging is enabled
func (l *SQLLogger) IsEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

// SetEnabled enables or disables SQL logging
func (l *SQLLogger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// LogQuery logs a statement that returned rows
func (l *SQLLogger) LogQuery(opID, query string, args []any, duration time.Duration, rowCount int) {
	if !l.IsEnabled() {
		return
	}
	log.Printf("[SQL] %s[%.2fms] [rows:%d] %s %s",
		l.formatOp(opID),
		millis(duration),
		rowCount,
		l.formatQuery(query),
		l.formatArgs(args))
}

// LogExec logs a statement that returned no rows, with the affected row count
func (l *SQLLogger) LogExec(opID, query string, args []any, duration time.Duration, rowsAffected int64) {
	if !l.IsEnabled() {
		return
	}
	if rowsAffected < 0 {
		log.Printf("[SQL] %s[%.2fms] %s %s",
			l.formatOp(opID),
			millis(duration),
			l.formatQuery(query),
			l.formatArgs(args))
		return
	}
	log.Printf("[SQL] %s[%.2fms] [rows:%d] %s %s",
		l.formatOp(opID),
		millis(duration),
		rowsAffected,
		l.formatQuery(query),
		l.formatArgs(args))
}

// LogError logs a statement that failed
func (l *SQLLogger) LogError(opID, query string, args []any, duration time.Duration, err error) {
	if !l.IsEnabled() {
		return
	}
	log.Printf("[SQL] %s[%.2fms] [ERROR] %s %s - %v",
		l.formatOp(opID),
		millis(duration),
		l.formatQuery(query),
		l.formatArgs(args),
		err)
}

// LogEvent logs a transaction boundary or an adapter lifecycle event
func (l *SQLLogger) LogEvent(opID, event string) {
	if !l.IsEnabled() {
		return
	}
	log.Printf("[SQL] %s%s", l.formatOp(opID), event)
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

func (l *SQLLogger) formatOp(opID string) string {
	if opID == "" {
		return ""
	}
	if len(opID) > 8 {
		opID = opID[:8]
	}
	return "[op:" + opID + "] "
}

// formatQuery cleans up the SQL query for better readability
func (l *SQLLogger) formatQuery(query string) string {
	query = strings.TrimSpace(query)
	query = strings.ReplaceAll(query, "\n", " ")
	query = strings.ReplaceAll(query, "\t", " ")

	// Collapse multiple spaces into single spaces
	for strings.Contains(query, "  ") {
		query = strings.ReplaceAll(query, "  ", " ")
	}

	return query
}

// formatArgs formats the query arguments for logging
func (l *SQLLogger) formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}

	var formatted []string
	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			formatted = append(formatted, fmt.Sprintf("%q", v))
		case nil:
			formatted = append(formatted, "NULL")
		case []byte:
			if utf8.Valid(v) && len(v) <= 64 {
				formatted = append(formatted, fmt.Sprintf("%q", v))
			} else {
				formatted = append(formatted, fmt.Sprintf("<%d bytes>", len(v)))
			}
		case time.Time:
			formatted = append(formatted, v.Format(time.RFC3339Nano))
		default:
			formatted = append(formatted, fmt.Sprintf("%v", v))
		}
	}

	return fmt.Sprintf("[Args: [%s]]", strings.Join(formatted, ", "))
}
