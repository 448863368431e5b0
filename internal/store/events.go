package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// QueueEvent is one link in an entry's hash-chained audit trail. The chain
// is retained even when deduplication deletes the entry row itself.
type QueueEvent struct {
	EntryID   string          `json:"entry_id"`
	EntrySeq  int             `json:"entry_seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// EventPayload is the audit record shape shared by all queue events.
type EventPayload struct {
	EntryID       string `json:"entry_id"`
	PatientID     string `json:"patient_id"`
	AppointmentID string `json:"appointment_id,omitempty"`
	BranchID      string `json:"branch_id"`
	QueueDate     string `json:"queue_date"`
	QueueNumber   int    `json:"queue_number"`
	Status        string `json:"status"`
	Actor         string `json:"actor,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func ComputeEventHash(prevHash, entryID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, entryID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyChain recomputes each event hash against its predecessor and
// reports whether the trail is intact.
func VerifyChain(events []QueueEvent) bool {
	prev := ""
	for _, event := range events {
		if event.PrevHash != prev {
			return false
		}
		expected := ComputeEventHash(prev, event.EntryID, event.Type, event.Payload, event.CreatedAt, event.EntrySeq)
		if event.Hash != expected {
			return false
		}
		prev = event.Hash
	}
	return true
}
