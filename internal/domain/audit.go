package domain

import "time"

// AuditRecord captures one processed signal end to end: the raw input, what
// the parser extracted, and what the execution engine did with it. Records
// are append-only and written even for rejected messages so every trade
// decision can be reconstructed later.
type AuditRecord struct {
	ID          string // uuid, assigned by the writer
	Channel     string // Display name of the source channel
	RawText     string
	ParsedOK    bool
	ParseReason string        // Failure reason when ParsedOK is false
	Signal      *ParsedSignal // nil when parsing failed
	Executed    bool
	Outcome     *ExecutionOutcome // nil when no execution was attempted
	CreatedAt   time.Time
}
