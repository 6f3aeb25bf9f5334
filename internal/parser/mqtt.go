package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/protoseclab/fuzzlab/internal/fuzz"
)

var (
	mqttProtoVerRe    = regexp.MustCompile(`protocol_version:\s*(\d+)`)
	mqttTypeRe        = regexp.MustCompile(`type:\s*\{([^}]*)\}`)
	mqttFieldRe       = regexp.MustCompile(`\bfield:\s*([^,]+)`)
	mqttBrokersRe     = regexp.MustCompile(`diff_range_broker:\s*\[([^\]]*)\]`)
	mqttQuotedItemRe  = regexp.MustCompile(`'([^']+)'`)
	mqttMsgTypeRe     = regexp.MustCompile(`msg_type:\s*([A-Za-z]+)`)
	mqttDirectionRe   = regexp.MustCompile(`direction:\s*(client|broker)`)
	mqttSourceFileRe  = regexp.MustCompile(`source_file:\s*(\S+)`)
	mqttCaptureTimeRe = regexp.MustCompile(`capture_time:\s*([\d]{4}-[\d]{2}-[\d]{2} [\d]{2}:[\d]{2}:[\d]{2})`)

	mqttStartTimeRe = regexp.MustCompile(`(?i)fuzzing start time[:：]\s*(.+)$`)
	mqttEndTimeRe   = regexp.MustCompile(`(?i)fuzzing end time[:：]\s*(.+)$`)
	mqttRequestsRe  = regexp.MustCompile(`Fuzzing request number \((client|broker)\):\s*(\d+)`)
	mqttMsgCountRe  = regexp.MustCompile(`^\s*([A-Z]+):\s*(\d+)\s*$`)

	mqttCrashNumRe      = regexp.MustCompile(`crash_number:\s*(\d+)`)
	mqttDiffNumRe       = regexp.MustCompile(`diff_number:\s*(\d+)`)
	mqttValidConnectRe  = regexp.MustCompile(`valid_connect_number:\s*(\d+)`)
	mqttDuplicateDiffRe = regexp.MustCompile(`duplicate_diff_number:\s*(\d+)`)
)

// MQTTParser consumes one line at a time from the multi-broker
// differential fuzzer's log and mutates the supplied statistics
// aggregate. It never looks across lines.
type MQTTParser struct {
	stats *fuzz.MQTTStats

	// OnComplete fires when the end-time line is seen, signalling run
	// completion.
	OnComplete func()
}

// NewMQTTParser returns a parser writing into stats.
func NewMQTTParser(stats *fuzz.MQTTStats) *MQTTParser {
	return &MQTTParser{stats: stats}
}

// ParseLine parses one log line. It returns a display record, or nil
// for lines that are intentionally silent (request counts and the
// file-level crash/diff/valid-connect summary) and for lines carrying
// nothing actionable.
func (p *MQTTParser) ParseLine(line string) *fuzz.Record {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	// Differential reports take priority over every other rule.
	if isDiffReportLine(trimmed) {
		report := parseDiffReport(trimmed)
		p.stats.AppendDiff(report)
		return diffRecord(report)
	}

	if m := mqttStartTimeRe.FindStringSubmatch(trimmed); m != nil {
		p.stats.StartTime = strings.TrimSpace(m[1])
		return fuzz.NewRecord(fuzz.SeverityInfo, "fuzzing started at "+p.stats.StartTime)
	}
	if m := mqttEndTimeRe.FindStringSubmatch(trimmed); m != nil {
		p.stats.EndTime = strings.TrimSpace(m[1])
		if p.OnComplete != nil {
			p.OnComplete()
		}
		return fuzz.NewRecord(fuzz.SeverityInfo, "fuzzing finished at "+p.stats.EndTime)
	}

	// Raw request counts are noise during a live run; they update the
	// aggregate silently and only surface in the final summary.
	if m := mqttRequestsRe.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[2])
		p.stats.SetRequests(m[1], n)
		return nil
	}

	// File-level summary counters. diff_number is deliberately not
	// applied: the diff counter is driven by report lines as they are
	// discovered, and applying the summary as well would double count.
	if m := mqttCrashNumRe.FindStringSubmatch(trimmed); m != nil {
		p.stats.CrashCount, _ = strconv.Atoi(m[1])
		return nil
	}
	if m := mqttValidConnectRe.FindStringSubmatch(trimmed); m != nil {
		p.stats.ValidConnectCount, _ = strconv.Atoi(m[1])
		return nil
	}
	if m := mqttDuplicateDiffRe.FindStringSubmatch(trimmed); m != nil {
		p.stats.DuplicateDiffCount, _ = strconv.Atoi(m[1])
		return nil
	}
	if mqttDiffNumRe.MatchString(trimmed) {
		return nil
	}

	// Generic per-message-type count, e.g. "PUBLISH: 42".
	if m := mqttMsgCountRe.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[2])
		p.stats.AddMsgCount(m[1], n)
		return nil
	}

	return fuzz.NewRecord(fuzz.SeverityInfo, trimmed)
}

// isDiffReportLine matches the differential-report signature:
// protocol_version co-occurring with a braced type or a field entry.
func isDiffReportLine(line string) bool {
	if !strings.Contains(line, "protocol_version:") {
		return false
	}
	return mqttTypeRe.MatchString(line) || strings.Contains(line, "field:")
}

// parseDiffReport extracts every report field independently; missing
// fields keep their zero value.
func parseDiffReport(line string) fuzz.DiffReport {
	var r fuzz.DiffReport
	if m := mqttProtoVerRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			r.ProtocolVersion = &v
		}
	}
	if m := mqttTypeRe.FindStringSubmatch(line); m != nil {
		r.DiffType = strings.TrimSpace(m[1])
	}
	if m := mqttFieldRe.FindStringSubmatch(line); m != nil {
		r.Field = strings.TrimSpace(m[1])
	}
	if m := mqttBrokersRe.FindStringSubmatch(line); m != nil {
		for _, item := range mqttQuotedItemRe.FindAllStringSubmatch(m[1], -1) {
			r.Brokers = append(r.Brokers, item[1])
		}
	}
	if m := mqttMsgTypeRe.FindStringSubmatch(line); m != nil {
		r.MsgType = m[1]
	}
	if m := mqttDirectionRe.FindStringSubmatch(line); m != nil {
		r.Direction = m[1]
	}
	if m := mqttSourceFileRe.FindStringSubmatch(line); m != nil {
		r.SourceFile = strings.TrimRight(m[1], ",")
	}
	if m := mqttCaptureTimeRe.FindStringSubmatch(line); m != nil {
		r.CaptureTime = m[1]
	}
	return r
}

// DiffSeverity maps a diff type to a display severity: message-level
// diffs are errors, field-level diffs warnings, anything else info.
func DiffSeverity(diffType string) fuzz.Severity {
	switch diffType {
	case fuzz.DiffMessageUnexpected, fuzz.DiffMessageMissing:
		return fuzz.SeverityError
	case fuzz.DiffFieldDifferent, fuzz.DiffFieldMissing, fuzz.DiffFieldUnexpected:
		return fuzz.SeverityWarning
	}
	return fuzz.SeverityInfo
}

// diffRecord builds the human-readable, type-specific display record
// for a differential report.
func diffRecord(r fuzz.DiffReport) *fuzz.Record {
	sev := DiffSeverity(r.DiffType)

	icon := "ℹ"
	switch sev {
	case fuzz.SeverityError:
		icon = "✖"
	case fuzz.SeverityWarning:
		icon = "⚠"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s ", icon)
	if r.Direction != "" {
		fmt.Fprintf(&b, "[%s] ", r.Direction)
	}
	if r.DiffType != "" {
		b.WriteString(r.DiffType)
	} else {
		b.WriteString("Inconsistency")
	}
	if r.MsgType != "" {
		fmt.Fprintf(&b, " on %s", r.MsgType)
	}
	if r.Field != "" {
		fmt.Fprintf(&b, " (field %s)", r.Field)
	}
	if len(r.Brokers) > 0 {
		fmt.Fprintf(&b, " across brokers: %s", strings.Join(r.Brokers, ", "))
	}
	if r.ProtocolVersion != nil {
		fmt.Fprintf(&b, " [MQTT v%d]", *r.ProtocolVersion)
	}
	return fuzz.NewRecord(sev, b.String())
}
