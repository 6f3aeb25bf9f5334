// Package parser turns raw fuzzer log text into structured statistics
// updates and displayable records. One parser per fuzzing backend: the
// SNMP packet-trace grammar, AFL-style CSV telemetry, and the MQTT
// differential fuzzer's report format. The grammars are fixed by the
// tools that emit them and are matched literally.
package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/protoseclab/fuzzlab/internal/fuzz"
)

// CrashLookaheadLines bounds how far past a crash-notification line the
// parser scans for the crash payload and exported-log path. The bound
// exists to keep scanning finite; the value is tunable.
const CrashLookaheadLines = 30

// SNMPResult is the outcome of parsing one accumulated SNMP fuzz log.
type SNMPResult struct {
	Packets []*fuzz.FuzzPacket

	// Summary histograms from the trailing 统计 line. Nil when the log
	// carries no summary or the summary failed to parse.
	VersionCounts map[string]int
	TypeCounts    map[string]int
	HasSummary    bool
}

var (
	snmpPacketStartRe = regexp.MustCompile(`^\[(\d+)\] 版本=([^,]+), 类型=(.+)$`)
	snmpGenFailRe     = regexp.MustCompile(`^\[(\d+)\] 生成失败[:：]\s*(.*)$`)
	snmpRecvOKRe      = regexp.MustCompile(`^\[接收成功\]\s*(\d+)\s*字节`)
	snmpSendRe        = regexp.MustCompile(`^\[发送\]\s*(\d+)\s*字节`)
	snmpSummaryRe     = regexp.MustCompile(`^统计[:：]\s*(\{.*?\})\s*,\s*(\{.*\})\s*$`)
	snmpOIDItemRe     = regexp.MustCompile(`'([^']+)'`)
)

// ParseSNMPLog scans accumulated multi-line fuzz-log text and extracts
// the ordered packet sequence plus the trailing summary histograms.
// Parsing is deterministic: the same text always yields the same result.
func ParseSNMPLog(text string) *SNMPResult {
	res := &SNMPResult{}
	lines := strings.Split(text, "\n")

	var current *fuzz.FuzzPacket
	flush := func() {
		if current != nil {
			res.Packets = append(res.Packets, current)
			current = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		// Generation failures share the [id] prefix with packet starts,
		// so they are matched first.
		if m := snmpGenFailRe.FindStringSubmatch(line); m != nil {
			id, reason := m[1], m[2]
			if current != nil && current.ID == id {
				current.Outcome = fuzz.OutcomeFailed
				current.FailReason = reason
				flush()
			} else {
				// An ID mismatch still yields a standalone failed
				// packet rather than dropping the line.
				res.Packets = append(res.Packets, &fuzz.FuzzPacket{
					ID:         id,
					Outcome:    fuzz.OutcomeFailed,
					FailReason: reason,
					Timestamp:  time.Now(),
				})
			}
			continue
		}

		if m := snmpPacketStartRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &fuzz.FuzzPacket{
				ID:        m[1],
				Version:   strings.TrimSpace(m[2]),
				Type:      strings.TrimSpace(m[3]),
				Outcome:   fuzz.OutcomeUnknown,
				Timestamp: time.Now(),
			}
			continue
		}

		if strings.HasPrefix(line, "选择OIDs=") {
			if current != nil {
				for _, m := range snmpOIDItemRe.FindAllStringSubmatch(line, -1) {
					current.OIDs = append(current.OIDs, m[1])
				}
			}
			continue
		}

		if strings.HasPrefix(line, "报文HEX:") {
			if current != nil {
				current.Hex = strings.TrimSpace(strings.TrimPrefix(line, "报文HEX:"))
			}
			continue
		}

		if m := snmpSendRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				current.SendSize, _ = strconv.Atoi(m[1])
			}
			continue
		}

		if m := snmpRecvOKRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				current.Outcome = fuzz.OutcomeSuccess
				current.ResponseSize, _ = strconv.Atoi(m[1])
			}
			continue
		}

		if strings.HasPrefix(line, "[接收超时]") {
			if current != nil {
				current.Outcome = fuzz.OutcomeTimeout
			}
			continue
		}

		if strings.Contains(line, "检测到崩溃") {
			crash := parseCrashBlock(lines, i)
			if current != nil {
				current.Outcome = fuzz.OutcomeCrash
			}
			res.Packets = append(res.Packets, &fuzz.FuzzPacket{
				ID:        fuzz.CrashEventID,
				Outcome:   fuzz.OutcomeCrash,
				Timestamp: crash.Timestamp,
				Crash:     crash,
			})
			continue
		}

		if m := snmpSummaryRe.FindStringSubmatch(line); m != nil {
			versions, types, err := parseSummaryDicts(m[1], m[2])
			if err == nil {
				res.VersionCounts = versions
				res.TypeCounts = types
				res.HasSummary = true
			}
			// Malformed summaries are tolerated: histograms keep their
			// prior values.
			continue
		}
	}
	flush()
	return res
}

// parseCrashBlock scans up to CrashLookaheadLines past the notification
// line for the suspect packet hex and the exported-log path.
func parseCrashBlock(lines []string, start int) *fuzz.CrashEvent {
	notif := strings.TrimSpace(lines[start])
	msg := notif
	if idx := strings.Index(notif, "检测到崩溃"); idx >= 0 {
		msg = strings.TrimLeft(notif[idx+len("检测到崩溃"):], ":： ")
		if msg == "" {
			msg = notif
		}
	}
	crash := &fuzz.CrashEvent{
		Type:      "target_crash",
		Message:   msg,
		Timestamp: time.Now(),
	}

	end := start + 1 + CrashLookaheadLines
	if end > len(lines) {
		end = len(lines)
	}
	for j := start + 1; j < end; j++ {
		l := strings.TrimSpace(lines[j])
		switch {
		case strings.HasPrefix(l, "可疑报文HEX:"):
			crash.SuspectHex = strings.TrimSpace(strings.TrimPrefix(l, "可疑报文HEX:"))
		case strings.HasPrefix(l, "崩溃日志已导出:"):
			crash.LogPath = strings.TrimSpace(strings.TrimPrefix(l, "崩溃日志已导出:"))
		}
		if crash.SuspectHex != "" && crash.LogPath != "" {
			break
		}
	}
	return crash
}

// parseSummaryDicts decodes the two python-dict-literal histograms from
// a summary line by normalizing single quotes to double quotes.
func parseSummaryDicts(versionDict, typeDict string) (map[string]int, map[string]int, error) {
	versions := make(map[string]int)
	if err := json.Unmarshal([]byte(strings.ReplaceAll(versionDict, "'", `"`)), &versions); err != nil {
		return nil, nil, err
	}
	types := make(map[string]int)
	if err := json.Unmarshal([]byte(strings.ReplaceAll(typeDict, "'", `"`)), &types); err != nil {
		return nil, nil, err
	}
	return versions, types, nil
}
