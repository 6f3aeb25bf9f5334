package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/protoseclab/fuzzlab/internal/fuzz"
)

// AFLLineKind classifies one line of AFL-style fuzzer output.
type AFLLineKind int

const (
	// AFLHeader is a # comment line, surfaced for display only.
	AFLHeader AFLLineKind = iota
	// AFLTelemetry is a CSV telemetry row; its snapshot replaces the
	// previous one entirely.
	AFLTelemetry
	// AFLInfo is any other line.
	AFLInfo
)

// aflTelemetryFields is the number of positional CSV fields in one
// telemetry row.
const aflTelemetryFields = 13

// AFLLine is the parsed form of one line of AFL-style output.
type AFLLine struct {
	Kind     AFLLineKind
	Snapshot *fuzz.AFLSnapshot // set only for AFLTelemetry
	Record   *fuzz.Record      // display record, nil for telemetry rows
}

// ParseAFLLine classifies and parses a single line of AFL telemetry
// output. Header lines never affect statistics. A telemetry row must
// carry at least 13 comma-separated fields and a numeric leading
// timestamp; anything else is a generic informational line.
func ParseAFLLine(line string) AFLLine {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "#") {
		return AFLLine{
			Kind:   AFLHeader,
			Record: fuzz.NewRecord(fuzz.SeverityInfo, trimmed),
		}
	}

	fields := strings.Split(trimmed, ",")
	if len(fields) >= aflTelemetryFields {
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if unixTime, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			snap := &fuzz.AFLSnapshot{
				UnixTime:      unixTime,
				CyclesDone:    atoiOrZero(fields[1]),
				CurPath:       atoiOrZero(fields[2]),
				PathsTotal:    atoiOrZero(fields[3]),
				PendingTotal:  atoiOrZero(fields[4]),
				PendingFavs:   atoiOrZero(fields[5]),
				MapSize:       fields[6],
				UniqueCrashes: atoiOrZero(fields[7]),
				UniqueHangs:   atoiOrZero(fields[8]),
				MaxDepth:      atoiOrZero(fields[9]),
				ExecsPerSec:   atofOrZero(fields[10]),
				Nodes:         atoiOrZero(fields[11]),
				Edges:         atoiOrZero(fields[12]),
			}
			return AFLLine{Kind: AFLTelemetry, Snapshot: snap}
		}
	}

	return AFLLine{
		Kind:   AFLInfo,
		Record: fuzz.NewRecord(fuzz.SeverityInfo, trimmed),
	}
}

// FormatAFLSnapshot renders a one-line summary of a telemetry snapshot
// for the live log panel.
func FormatAFLSnapshot(s *fuzz.AFLSnapshot) string {
	return fmt.Sprintf(
		"cycle %d: paths %d/%d (pending %d, fav %d), coverage %s, crashes %d, hangs %d, %d exec/s",
		s.CyclesDone, s.CurPath, s.PathsTotal, s.PendingTotal, s.PendingFavs,
		s.MapSize, s.UniqueCrashes, s.UniqueHangs, s.Throughput())
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atofOrZero(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
