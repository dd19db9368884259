// Audit logging for compliance tracking: who migrated what, when, and with
// which model.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventLLMRequest     AuditEventType = "llm.request"
	AuditEventLLMResponse    AuditEventType = "llm.response"
	AuditEventLLMError       AuditEventType = "llm.error"
	AuditEventRetrieval      AuditEventType = "retrieval.run"
	AuditEventValidation     AuditEventType = "validation.check"
	AuditEventIngest         AuditEventType = "ingest.run"
	AuditEventIndexRebuild   AuditEventType = "index.rebuild"
	AuditEventMigrationStart AuditEventType = "migration.start"
	AuditEventMigrationEnd   AuditEventType = "migration.end"
)

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // file path, or "stdout"/"stderr"
	SessionID  string
	UserID     string
}

// AuditLogger writes the audit trail as JSON lines, one event per line,
// so the stream ships straight into a log pipeline. Events carry no
// level; every audit event matters equally.
type AuditLogger struct {
	log     *slog.Logger
	file    *os.File
	enabled bool
}

// NewAuditLogger opens the audit sink and stamps every event with the
// session (and, when set, the user) it belongs to.
func NewAuditLogger(cfg *AuditConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = &AuditConfig{Enabled: true}
	}

	var (
		w    io.Writer
		file *os.File
	)
	switch cfg.OutputPath {
	case "stdout", "":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		w = f
		file = f
	}

	session := cfg.SessionID
	if session == "" {
		session = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	l := newAuditLogger(w, session, cfg.UserID, cfg.Enabled)
	l.file = file
	return l, nil
}

func newAuditLogger(w io.Writer, session, user string, enabled bool) *AuditLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				return slog.Attr{}
			case slog.TimeKey:
				a.Key = "timestamp"
			case slog.MessageKey:
				a.Key = "message"
			}
			return a
		},
	})
	log := slog.New(handler).With("session_id", session)
	if user != "" {
		log = log.With("user_id", user)
	}
	return &AuditLogger{log: log, enabled: enabled}
}

func (l *AuditLogger) record(ctx context.Context, typ AuditEventType, success bool, msg string, attrs ...any) {
	if l == nil || !l.enabled {
		return
	}
	args := append([]any{"event_type", string(typ), "success", success}, attrs...)
	l.log.InfoContext(ctx, msg, args...)
}

// LogLLMRequest records an outbound LLM request.
func (l *AuditLogger) LogLLMRequest(ctx context.Context, provider, model string, promptTokens int) {
	l.record(ctx, AuditEventLLMRequest, true,
		fmt.Sprintf("LLM request to %s/%s", provider, model),
		"provider", provider, "model", model, "prompt_tokens", promptTokens)
}

// LogLLMResponse records a completed LLM round trip.
func (l *AuditLogger) LogLLMResponse(ctx context.Context, provider, model string, duration time.Duration, inputTokens, outputTokens int) {
	l.record(ctx, AuditEventLLMResponse, true,
		fmt.Sprintf("LLM response from %s/%s", provider, model),
		"provider", provider, "model", model,
		"duration_ms", duration.Milliseconds(),
		"input_tokens", inputTokens, "output_tokens", outputTokens,
		"total_tokens", inputTokens+outputTokens)
}

// LogLLMError records a failed LLM call.
func (l *AuditLogger) LogLLMError(ctx context.Context, provider, model string, err error) {
	l.record(ctx, AuditEventLLMError, false,
		fmt.Sprintf("LLM error from %s/%s", provider, model),
		"provider", provider, "model", model, "error", err.Error())
}

// LogRetrieval records a context retrieval run.
func (l *AuditLogger) LogRetrieval(ctx context.Context, query string, recordCount, totalTokens int, duration time.Duration) {
	l.record(ctx, AuditEventRetrieval, true,
		fmt.Sprintf("Retrieved %d records (%d tokens)", recordCount, totalTokens),
		"query", query, "record_count", recordCount,
		"total_tokens", totalTokens, "duration_ms", duration.Milliseconds())
}

// LogValidation records a candidate validation round.
func (l *AuditLogger) LogValidation(ctx context.Context, migrationID string, valid bool, issues []string) {
	l.record(ctx, AuditEventValidation, valid,
		fmt.Sprintf("Validation %v with %d issues", valid, len(issues)),
		"migration_id", migrationID, "issues", issues)
}

// LogIngest records an ingestion run.
func (l *AuditLogger) LogIngest(ctx context.Context, repository string, recordCount int, duration time.Duration) {
	l.record(ctx, AuditEventIngest, true,
		fmt.Sprintf("Ingested %d records for %s", recordCount, repository),
		"repository", repository, "record_count", recordCount,
		"duration_ms", duration.Milliseconds())
}

// LogIndexRebuild records an index rebuild, successful or not.
func (l *AuditLogger) LogIndexRebuild(ctx context.Context, entryCount int, duration time.Duration, err error) {
	attrs := []any{"entry_count", entryCount, "duration_ms", duration.Milliseconds()}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	l.record(ctx, AuditEventIndexRebuild, err == nil,
		fmt.Sprintf("Index rebuilt with %d entries", entryCount), attrs...)
}

// LogMigrationStart records the start of a migration run.
func (l *AuditLogger) LogMigrationStart(ctx context.Context, migrationID, sourceRepo, targetRepo string) {
	l.record(ctx, AuditEventMigrationStart, true,
		fmt.Sprintf("Migration started: %s -> %s", sourceRepo, targetRepo),
		"migration_id", migrationID, "source_repo", sourceRepo, "target_repo", targetRepo)
}

// LogMigrationEnd records the outcome of a migration run.
func (l *AuditLogger) LogMigrationEnd(ctx context.Context, migrationID string, migrated bool, attempts int, duration time.Duration) {
	l.record(ctx, AuditEventMigrationEnd, migrated,
		fmt.Sprintf("Migration completed after %d attempts", attempts),
		"migration_id", migrationID, "attempts", attempts,
		"duration_ms", duration.Milliseconds())
}

// Close releases the audit sink when it is file-backed.
func (l *AuditLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Global audit logger instance
var globalAuditLogger *AuditLogger
var auditOnce sync.Once

// InitGlobalAuditLogger initializes the global audit logger.
func InitGlobalAuditLogger(config *AuditConfig) error {
	var err error
	auditOnce.Do(func() {
		globalAuditLogger, err = NewAuditLogger(config)
	})
	return err
}

// Audit returns the global audit logger. Before initialization it
// returns a disabled logger so call sites never nil-check.
func Audit() *AuditLogger {
	if globalAuditLogger == nil {
		return &AuditLogger{enabled: false}
	}
	return globalAuditLogger
}
