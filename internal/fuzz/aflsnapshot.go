package fuzz

import "math"

// AFLSnapshot is a point-in-time read of an AFL-style fuzzer's CSV
// telemetry line. Each new line replaces the previous snapshot in full;
// nothing is merged. MapSize stays a percentage-formatted string because
// that is how the fuzzer reports it.
type AFLSnapshot struct {
	UnixTime      int64   `json:"unix_time"`
	CyclesDone    int     `json:"cycles_done"`
	CurPath       int     `json:"cur_path"`
	PathsTotal    int     `json:"paths_total"`
	PendingTotal  int     `json:"pending_total"`
	PendingFavs   int     `json:"pending_favs"`
	MapSize       string  `json:"map_size"`
	UniqueCrashes int     `json:"unique_crashes"`
	UniqueHangs   int     `json:"unique_hangs"`
	MaxDepth      int     `json:"max_depth"`
	ExecsPerSec   float64 `json:"execs_per_sec"`
	Nodes         int     `json:"n_nodes"`
	Edges         int     `json:"n_edges"`
}

// PacketCount derives the displayed packet count (current path id).
func (s *AFLSnapshot) PacketCount() int { return s.CurPath }

// SuccessCount derives the displayed success count.
func (s *AFLSnapshot) SuccessCount() int { return s.PathsTotal - s.PendingTotal }

// CrashCount derives the displayed crash/fail count.
func (s *AFLSnapshot) CrashCount() int { return s.UniqueCrashes }

// Throughput derives the displayed executions-per-second figure.
func (s *AFLSnapshot) Throughput() int { return int(math.Round(s.ExecsPerSec)) }

// AFLStats holds the latest telemetry snapshot for a SOL/RTSP run.
type AFLStats struct {
	Snapshot *AFLSnapshot `json:"snapshot,omitempty"`
}

// NewAFLStats returns an empty aggregate.
func NewAFLStats() *AFLStats { return &AFLStats{} }

// Reset discards the current snapshot.
func (a *AFLStats) Reset() { a.Snapshot = nil }

// Replace installs a new snapshot, discarding the previous one.
func (a *AFLStats) Replace(s *AFLSnapshot) { a.Snapshot = s }
