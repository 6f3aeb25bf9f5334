package fuzz

// SNMPVersions is the closed set of version histogram keys.
var SNMPVersions = []string{"v1", "v2c", "v3"}

// SNMPTypes is the closed set of message-type histogram keys.
var SNMPTypes = []string{"get", "set", "getnext", "getbulk"}

// SNMPStats aggregates one SNMP fuzzing run. Histogram keys are fixed;
// unknown keys are ignored rather than added.
type SNMPStats struct {
	VersionCounts map[string]int `json:"version_counts"`
	TypeCounts    map[string]int `json:"type_counts"`

	TotalPackets int `json:"total_packets"`
	SuccessCount int `json:"success_count"`
	TimeoutCount int `json:"timeout_count"`
	FailedCount  int `json:"failed_count"`
	CrashCount   int `json:"crash_count"`
}

// NewSNMPStats returns a zeroed aggregate with all histogram keys present.
func NewSNMPStats() *SNMPStats {
	s := &SNMPStats{}
	s.Reset()
	return s
}

// Reset zeroes all counters, keeping the fixed key sets.
func (s *SNMPStats) Reset() {
	s.VersionCounts = make(map[string]int, len(SNMPVersions))
	for _, v := range SNMPVersions {
		s.VersionCounts[v] = 0
	}
	s.TypeCounts = make(map[string]int, len(SNMPTypes))
	for _, t := range SNMPTypes {
		s.TypeCounts[t] = 0
	}
	s.TotalPackets = 0
	s.SuccessCount = 0
	s.TimeoutCount = 0
	s.FailedCount = 0
	s.CrashCount = 0
}

// CountPacket folds one packet into the running counters.
func (s *SNMPStats) CountPacket(p *FuzzPacket) {
	if p.IsCrashEvent() {
		s.CrashCount++
		return
	}
	s.TotalPackets++
	s.AddVersion(p.Version, 1)
	s.AddType(p.Type, 1)
	switch p.Outcome {
	case OutcomeSuccess:
		s.SuccessCount++
	case OutcomeTimeout:
		s.TimeoutCount++
	case OutcomeFailed:
		s.FailedCount++
	case OutcomeCrash:
		s.CrashCount++
	}
}

// AddVersion increments a version histogram bucket if the key is known.
func (s *SNMPStats) AddVersion(version string, n int) {
	if _, ok := s.VersionCounts[version]; ok {
		s.VersionCounts[version] += n
	}
}

// AddType increments a message-type histogram bucket if the key is known.
func (s *SNMPStats) AddType(msgType string, n int) {
	if _, ok := s.TypeCounts[msgType]; ok {
		s.TypeCounts[msgType] += n
	}
}

// ApplySummary overwrites the histograms with authoritative totals from a
// trailing summary line. Unknown keys in the summary are dropped.
func (s *SNMPStats) ApplySummary(versions, types map[string]int) {
	for k := range s.VersionCounts {
		if v, ok := versions[k]; ok {
			s.VersionCounts[k] = v
		}
	}
	for k := range s.TypeCounts {
		if v, ok := types[k]; ok {
			s.TypeCounts[k] = v
		}
	}
}
