// Package fuzz defines the data model shared by the fuzzing session
// controller, the per-protocol log parsers, and the history store.
package fuzz

import "time"

// Protocol identifies which fuzzing backend a session drives.
type Protocol string

const (
	ProtocolSNMP Protocol = "snmp"
	ProtocolSOL  Protocol = "sol"
	ProtocolMQTT Protocol = "mqtt"
)

// Valid reports whether p is one of the supported protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolSNMP, ProtocolSOL, ProtocolMQTT:
		return true
	}
	return false
}

// Outcome is the result of one fuzzed exchange.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeFailed  Outcome = "failed"
	OutcomeCrash   Outcome = "crash"
	OutcomeUnknown Outcome = "unknown"
)

// CrashEventID is the sentinel packet identifier used for synthesized
// crash-event packets, which carry no sequence number of their own.
const CrashEventID = "crash_event"

// CrashEvent captures the details of a target crash observed by the
// fuzzer's monitor.
type CrashEvent struct {
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	SuspectHex string    `json:"suspect_hex,omitempty"`
	LogPath    string    `json:"log_path,omitempty"`
}

// FuzzPacket is one parsed SNMP protocol exchange. Packets are immutable
// once the parser has flushed them.
type FuzzPacket struct {
	ID           string      `json:"id"` // numeric string, or CrashEventID
	Version      string      `json:"version"`
	Type         string      `json:"type"`
	OIDs         []string    `json:"oids,omitempty"`
	Hex          string      `json:"hex,omitempty"`
	Outcome      Outcome     `json:"outcome"`
	SendSize     int         `json:"send_size,omitempty"`
	ResponseSize int         `json:"response_size,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	FailReason   string      `json:"fail_reason,omitempty"`
	Crash        *CrashEvent `json:"crash,omitempty"`
}

// IsCrashEvent reports whether the packet is a synthesized crash record
// rather than a numbered exchange.
func (p *FuzzPacket) IsCrashEvent() bool {
	return p.ID == CrashEventID
}
