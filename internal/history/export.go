package history

import (
	"fmt"
	"sort"
	"strings"
)

// ExportRecord renders one record as a human-readable text report.
func ExportRecord(r *Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Fuzzing Run Report\n")
	fmt.Fprintf(&b, "==================\n\n")
	fmt.Fprintf(&b, "Run ID:    %s\n", r.ID)
	fmt.Fprintf(&b, "Protocol:  %s\n", r.Protocol)
	if r.Engine != "" {
		fmt.Fprintf(&b, "Engine:    %s\n", r.Engine)
	}
	if r.TargetHost != "" {
		fmt.Fprintf(&b, "Target:    %s:%d\n", r.TargetHost, r.TargetPort)
	}
	fmt.Fprintf(&b, "Started:   %s\n", r.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Finished:  %s\n", r.EndTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Duration:  %.1fs\n\n", r.DurationSeconds)

	fmt.Fprintf(&b, "Totals\n")
	fmt.Fprintf(&b, "  Packets:  %d\n", r.TotalPackets)
	fmt.Fprintf(&b, "  Success:  %d\n", r.SuccessCount)
	fmt.Fprintf(&b, "  Timeout:  %d\n", r.TimeoutCount)
	fmt.Fprintf(&b, "  Failed:   %d\n", r.FailedCount)
	fmt.Fprintf(&b, "  Crashes:  %d\n", r.CrashCount)
	fmt.Fprintf(&b, "  Success rate: %.1f%%\n", r.SuccessRate*100)

	if r.SNMP != nil {
		fmt.Fprintf(&b, "\nSNMP Histograms\n")
		fmt.Fprintf(&b, "  Versions: %s\n", formatHistogram(r.SNMP.VersionCounts))
		fmt.Fprintf(&b, "  Types:    %s\n", formatHistogram(r.SNMP.TypeCounts))
	}

	if r.AFL != nil {
		fmt.Fprintf(&b, "\nAFL Telemetry (final)\n")
		fmt.Fprintf(&b, "  Cycles:    %d\n", r.AFL.CyclesDone)
		fmt.Fprintf(&b, "  Paths:     %d/%d\n", r.AFL.CurPath, r.AFL.PathsTotal)
		fmt.Fprintf(&b, "  Coverage:  %s\n", r.AFL.MapSize)
		fmt.Fprintf(&b, "  Crashes:   %d  Hangs: %d\n", r.AFL.UniqueCrashes, r.AFL.UniqueHangs)
		fmt.Fprintf(&b, "  Exec/s:    %d\n", r.AFL.Throughput())
	}

	if r.MQTT != nil {
		fmt.Fprintf(&b, "\nMQTT Differential Summary\n")
		fmt.Fprintf(&b, "  Requests:  %d (client %d, broker %d)\n",
			r.MQTT.TotalRequests, r.MQTT.ClientRequests, r.MQTT.BrokerRequests)
		fmt.Fprintf(&b, "  Diffs:     %d (duplicates %d)\n", r.MQTT.DiffCount, r.MQTT.DuplicateDiffCount)
		fmt.Fprintf(&b, "  Crashes:   %d\n", r.MQTT.CrashCount)
		fmt.Fprintf(&b, "  Valid connects: %d\n", r.MQTT.ValidConnectCount)
		fmt.Fprintf(&b, "  Broker issues: %s\n", formatHistogram(r.MQTT.BrokerIssues))
		for i, d := range r.MQTT.DiffReports {
			fmt.Fprintf(&b, "  [%d] %s on %s (%s)\n", i+1, d.DiffType, d.MsgType, strings.Join(d.Brokers, ", "))
		}
	}

	if r.Crashed {
		fmt.Fprintf(&b, "\nCRASH DETECTED\n")
		if r.CrashDetail != nil {
			fmt.Fprintf(&b, "  Message:  %s\n", r.CrashDetail.Message)
			if r.CrashDetail.SuspectHex != "" {
				fmt.Fprintf(&b, "  Suspect:  %s\n", r.CrashDetail.SuspectHex)
			}
			if r.CrashDetail.LogPath != "" {
				fmt.Fprintf(&b, "  Log:      %s\n", r.CrashDetail.LogPath)
			}
		}
	}

	return b.String()
}

// ExportAll renders every record in the collection, newest first.
func ExportAll(records []Record) string {
	var b strings.Builder
	for i := range records {
		if i > 0 {
			b.WriteString("\n" + strings.Repeat("-", 50) + "\n\n")
		}
		b.WriteString(ExportRecord(&records[i]))
	}
	return b.String()
}

func formatHistogram(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}
