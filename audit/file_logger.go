package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileLogger appends events to a JSONL file and keeps a bounded in-memory
// cache of recent events for fast queries.
type FileLogger struct {
	file       *os.File
	mu         sync.RWMutex
	fileOpts   FileOptions
	eventCache []Event
	cacheSize  int
}

type FileOptions struct {
	FilePath string `json:"file_path"`
}

// NewFileLogger creates a new file-based audit logger.
func NewFileLogger(config *Config) (*FileLogger, error) {
	var fileOpts FileOptions
	if err := parseOptions(config.Options, &fileOpts); err != nil {
		return nil, fmt.Errorf("invalid file logger options: %w", err)
	}
	if fileOpts.FilePath == "" {
		return nil, fmt.Errorf("file_path is required for file logger")
	}

	if err := os.MkdirAll(filepath.Dir(fileOpts.FilePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	file, err := os.OpenFile(fileOpts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &FileLogger{
		file:       file,
		fileOpts:   fileOpts,
		eventCache: make([]Event, 0),
		cacheSize:  1000,
	}, nil
}

// Log implements the Logger interface.
func (fl *FileLogger) Log(action string, success bool, metadata map[string]interface{}) error {
	event := Event{
		ID:        generateEventID(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Success:   success,
		Metadata:  metadata,
	}

	// Lift well-known metadata keys into first-class event fields so the
	// log is queryable without digging through metadata.
	if metadata != nil {
		if s, ok := metadata["service"].(string); ok {
			event.Service = s
		}
		if u, ok := metadata["user"].(string); ok {
			event.User = u
		}
		if r, ok := metadata["request_id"].(string); ok {
			event.RequestID = r
		}
		if d, ok := metadata["duration_ms"].(int64); ok {
			event.Duration = d
		}
		if e, ok := metadata["error"].(string); ok {
			event.Error = e
		}
	}

	return fl.writeEvent(event)
}

// writeEvent appends an event in JSONL format and updates the cache.
func (fl *FileLogger) writeEvent(event Event) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize audit event: %w", err)
	}
	if _, err = fl.file.WriteString(string(eventJSON) + "\n"); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	if err = fl.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log: %w", err)
	}

	fl.eventCache = append(fl.eventCache, event)
	if len(fl.eventCache) > fl.cacheSize {
		fl.eventCache = fl.eventCache[len(fl.eventCache)-fl.cacheSize:]
	}
	return nil
}

// Query filters logged events. It reads the backing file so events from
// previous processes are included.
func (fl *FileLogger) Query(options QueryOptions) (QueryResult, error) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	file, err := os.Open(fl.fileOpts.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return QueryResult{}, nil
		}
		return QueryResult{}, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var all []Event
	total := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err = json.Unmarshal(line, &event); err != nil {
			// Skip malformed lines rather than failing the whole query.
			continue
		}
		total++
		if matchesFilter(event, options) {
			all = append(all, event)
		}
	}
	if err = scanner.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("failed to read audit log: %w", err)
	}

	// Newest first.
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	filtered := len(all)
	start := options.Offset
	if start > len(all) {
		start = len(all)
	}
	all = all[start:]
	hasMore := false
	if options.Limit > 0 && len(all) > options.Limit {
		all = all[:options.Limit]
		hasMore = true
	}

	return QueryResult{
		Events:     all,
		TotalCount: total,
		Filtered:   filtered,
		HasMore:    hasMore,
	}, nil
}

func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.file == nil {
		return nil
	}
	err := fl.file.Close()
	fl.file = nil
	return err
}
