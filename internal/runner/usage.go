// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Usage holds the resource-usage metrics reported by the probe.
type Usage struct {
	UserSeconds            float64
	SystemSeconds          float64
	PercentCPU             int64
	MaxRSSBytes            uint64
	MajorPageFaults        int64
	MinorPageFaults        int64
	VoluntaryCtxSwitches   int64
	InvoluntaryCtxSwitches int64
	FileSystemOutputs      int64
}

// ParseUsageFile reads a probe report file. See ParseUsage.
func ParseUsageFile(path string) (Usage, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return Usage{}, true, fmt.Errorf("failed to open usage report: %w", err)
	}
	defer f.Close()
	usage, degraded := ParseUsage(f)
	return usage, degraded, nil
}

// ParseUsage extracts metrics from GNU time -v style output: one
// "Label: value" pair per line. The format is loosely specified and varies
// across platforms, so parsing is defensive: unknown labels are ignored and
// values that fail to parse zero-fill their field and flip the degraded
// flag. ParseUsage never fails outright.
func ParseUsage(r io.Reader) (usage Usage, degraded bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Labels can contain colons ("Elapsed (wall clock) time
		// (h:mm:ss or m:ss)"), so split on the last ": " instead of
		// the first.
		idx := strings.LastIndex(line, ": ")
		if idx < 0 {
			continue
		}
		label := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+2:])

		ok := true
		switch label {
		case "User time (seconds)":
			usage.UserSeconds, ok = parseFloat(value)
		case "System time (seconds)":
			usage.SystemSeconds, ok = parseFloat(value)
		case "Percent of CPU this job got":
			usage.PercentCPU, ok = parseInt(strings.TrimSuffix(value, "%"))
		case "Maximum resident set size (kbytes)":
			var kb int64
			if kb, ok = parseInt(value); ok && kb >= 0 {
				usage.MaxRSSBytes = uint64(kb) * 1024
			}
		case "Major (requiring I/O) page faults":
			usage.MajorPageFaults, ok = parseInt(value)
		case "Minor (reclaiming a frame) page faults":
			usage.MinorPageFaults, ok = parseInt(value)
		case "Voluntary context switches":
			usage.VoluntaryCtxSwitches, ok = parseInt(value)
		case "Involuntary context switches":
			usage.InvoluntaryCtxSwitches, ok = parseInt(value)
		case "File system outputs":
			usage.FileSystemOutputs, ok = parseInt(value)
		default:
			log.Debug("ignoring usage report field", "label", label)
		}
		if !ok {
			degraded = true
		}
	}
	if err := scanner.Err(); err != nil {
		degraded = true
	}
	return usage, degraded
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseInt(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
