package fuzz

// MQTTMessageTypes is the closed set of message-type histogram keys, in
// wire order.
var MQTTMessageTypes = []string{
	"CONNECT", "CONNACK", "PUBLISH", "PUBACK", "PUBREC", "PUBREL",
	"PUBCOMP", "SUBSCRIBE", "SUBACK", "UNSUBSCRIBE", "UNSUBACK",
	"PINGREQ", "PINGRESP", "DISCONNECT", "AUTH",
}

// MQTTBrokers is the closed set of broker implementations tracked by the
// differential fuzzer.
var MQTTBrokers = []string{"hivemq", "vernemq", "emqx", "flashmq", "nanomq", "mosquitto"}

// Diff-type labels recognized in differential reports. Free-text labels
// outside this set are carried through verbatim.
const (
	DiffMessageUnexpected = "Message Unexpected"
	DiffMessageMissing    = "Message Missing"
	DiffFieldDifferent    = "Field Different"
	DiffFieldMissing      = "Field Missing"
	DiffFieldUnexpected   = "Field Unexpected"
)

// DiffReport is one detected inconsistency between broker
// implementations. Absent fields keep their zero value (nil for
// ProtocolVersion). Reports are immutable once parsed.
type DiffReport struct {
	ProtocolVersion *int     `json:"protocol_version,omitempty"`
	DiffType        string   `json:"diff_type,omitempty"`
	Field           string   `json:"field,omitempty"`
	Brokers         []string `json:"brokers,omitempty"`
	MsgType         string   `json:"msg_type,omitempty"`
	Direction       string   `json:"direction,omitempty"` // "client" or "broker"
	SourceFile      string   `json:"source_file,omitempty"`
	CaptureTime     string   `json:"capture_time,omitempty"`
}

// MQTTStats is the monotonically-accumulating aggregate for one
// multi-broker differential fuzzing run.
type MQTTStats struct {
	StartTime string `json:"fuzzing_start_time,omitempty"`
	EndTime   string `json:"fuzzing_end_time,omitempty"`

	ClientRequests int `json:"client_requests"`
	BrokerRequests int `json:"broker_requests"`
	TotalRequests  int `json:"total_requests"`

	CrashCount         int `json:"crash_count"`
	DiffCount          int `json:"diff_count"`
	DuplicateDiffCount int `json:"duplicate_diff_count"`
	ValidConnectCount  int `json:"valid_connect_count"`

	ClientMsgCounts map[string]int `json:"client_msg_counts"`
	BrokerMsgCounts map[string]int `json:"broker_msg_counts"`

	// DiffReports is append-only for the duration of a run.
	DiffReports []DiffReport `json:"diff_reports,omitempty"`

	// BrokerIssues counts how many differential reports implicated each
	// broker implementation.
	BrokerIssues map[string]int `json:"broker_issues"`
}

// NewMQTTStats returns a zeroed aggregate with all histogram keys present.
func NewMQTTStats() *MQTTStats {
	s := &MQTTStats{}
	s.Reset()
	return s
}

// Reset zeroes every counter and drops accumulated reports.
func (s *MQTTStats) Reset() {
	s.StartTime = ""
	s.EndTime = ""
	s.ClientRequests = 0
	s.BrokerRequests = 0
	s.TotalRequests = 0
	s.CrashCount = 0
	s.DiffCount = 0
	s.DuplicateDiffCount = 0
	s.ValidConnectCount = 0
	s.ClientMsgCounts = make(map[string]int, len(MQTTMessageTypes))
	s.BrokerMsgCounts = make(map[string]int, len(MQTTMessageTypes))
	for _, t := range MQTTMessageTypes {
		s.ClientMsgCounts[t] = 0
		s.BrokerMsgCounts[t] = 0
	}
	s.DiffReports = nil
	s.BrokerIssues = make(map[string]int, len(MQTTBrokers))
	for _, b := range MQTTBrokers {
		s.BrokerIssues[b] = 0
	}
}

// AppendDiff records one differential report, bumping the diff counter
// and each implicated broker's issue counter by exactly one.
func (s *MQTTStats) AppendDiff(r DiffReport) {
	s.DiffReports = append(s.DiffReports, r)
	s.DiffCount++
	for _, b := range r.Brokers {
		if _, ok := s.BrokerIssues[b]; ok {
			s.BrokerIssues[b]++
		}
	}
}

// SetRequests updates one direction's request counter and recomputes the
// total. The direction must be "client" or "broker"; anything else is
// ignored.
func (s *MQTTStats) SetRequests(direction string, n int) {
	switch direction {
	case "client":
		s.ClientRequests = n
	case "broker":
		s.BrokerRequests = n
	default:
		return
	}
	s.TotalRequests = s.ClientRequests + s.BrokerRequests
}

// AddMsgCount attributes a per-message-type count to one of the two
// direction histograms. The attribution heuristic mirrors the fuzzing
// tool's log format, which emits client counts before broker counts: a
// type whose client bucket is still zero is attributed to the client
// histogram, otherwise to the broker histogram while that is zero, and
// dropped once both are populated.
func (s *MQTTStats) AddMsgCount(msgType string, n int) {
	if _, ok := s.ClientMsgCounts[msgType]; !ok {
		return
	}
	if s.ClientMsgCounts[msgType] == 0 {
		s.ClientMsgCounts[msgType] = n
		return
	}
	if s.BrokerMsgCounts[msgType] == 0 {
		s.BrokerMsgCounts[msgType] = n
	}
}
