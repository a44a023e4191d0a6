package ytdlp

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var percentRe = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%`)

// StderrEvents receives parsed events from a streaming process's stderr.
type StderrEvents struct {
	// OnPercent is called for every progress percentage the tool reports.
	OnPercent func(percent float64)
	// OnError is called when a line carries an error marker.
	OnError func(line string)
	// OnLine is called for every raw line, after the other callbacks.
	OnLine func(line string)
}

// ScanStderr reads the tool's stderr line by line, driving the callbacks
// until EOF. The tool writes progress as `[download] NN.N%` lines and
// failures as lines containing an ERROR marker.
func ScanStderr(r io.Reader, events StderrEvents) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if m := percentRe.FindStringSubmatch(line); m != nil && events.OnPercent != nil {
			if percent, err := strconv.ParseFloat(m[1], 64); err == nil {
				events.OnPercent(percent)
			}
		}

		if events.OnError != nil && isErrorLine(line) {
			events.OnError(line)
		}

		if events.OnLine != nil {
			events.OnLine(line)
		}
	}
}

func isErrorLine(line string) bool {
	return strings.Contains(line, "ERROR") || strings.Contains(line, "error:")
}
