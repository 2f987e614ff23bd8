// Package audit provides pluggable audit logging for credential store
// operations. Events record what happened to which (service, user) entry and
// whether it worked; secret data itself never reaches an audit sink.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Config defines audit logging configuration.
type Config struct {
	Enabled bool                   `json:"enabled" yaml:"enabled"`
	Type    ConfigType             `json:"type" yaml:"type"`
	Options map[string]interface{} `json:"options" yaml:"options"` // provider-specific options
}

type ConfigType string

const (
	FileAuditType   ConfigType = "file"
	SyslogAuditType ConfigType = "syslog"
	NoOp            ConfigType = ""
)

// Logger is the interface for pluggable audit implementations.
type Logger interface {
	Log(action string, success bool, metadata map[string]interface{}) error
	Query(options QueryOptions) (QueryResult, error)
	Close() error
}

// Event represents an audit log event.
type Event struct {
	ID        string                 `json:"id"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Service   string                 `json:"service,omitempty"`
	User      string                 `json:"user,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
}

// QueryOptions filters audit logs.
type QueryOptions struct {
	Since   *time.Time
	Until   *time.Time
	Action  string
	Success *bool // nil = all, true = only success, false = only failures
	Service string
	Limit   int
	Offset  int
}

// QueryResult contains the results of an audit query.
type QueryResult struct {
	Events     []Event `json:"events"`
	TotalCount int     `json:"total_count"`
	Filtered   int     `json:"filtered"`
	HasMore    bool    `json:"has_more"`
}

// NewLogger creates an appropriate logger based on configuration.
func NewLogger(config *Config) (Logger, error) {
	if config == nil || !config.Enabled {
		return &NoOpLogger{}, nil
	}

	switch config.Type {
	case FileAuditType:
		return NewFileLogger(config)
	case SyslogAuditType:
		return NewSyslogLogger(config)
	case NoOp:
		return &NoOpLogger{}, nil
	default:
		return nil, fmt.Errorf("unknown audit provider: %s", config.Type)
	}
}

// parseOptions converts the generic options map to a provider options struct.
func parseOptions(options map[string]interface{}, target interface{}) error {
	if len(options) == 0 {
		return nil
	}

	jsonData, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	if err = json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return nil
}

func generateEventID() string {
	return uuid.NewString()
}

func matchesFilter(event Event, options QueryOptions) bool {
	if options.Action != "" && event.Action != options.Action {
		return false
	}
	if options.Service != "" && event.Service != options.Service {
		return false
	}
	if options.Success != nil && event.Success != *options.Success {
		return false
	}
	if options.Since != nil && event.Timestamp.Before(*options.Since) {
		return false
	}
	if options.Until != nil && event.Timestamp.After(*options.Until) {
		return false
	}
	return true
}
