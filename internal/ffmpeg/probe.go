package ffmpeg

import (
	"regexp"
	"strconv"
	"time"
)

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)
	timeRe     = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
)

// parseDurationFromFFmpegOutput extracts duration from FFmpeg stderr.
// Looks for: "Duration: HH:MM:SS.ms" or, failing that, the last "time=HH:MM:SS.ms".
func parseDurationFromFFmpegOutput(output string) (time.Duration, error) {
	if m := durationRe.FindStringSubmatch(output); m != nil {
		return parseTimeComponents(m[1], m[2], m[3], m[4]), nil
	}
	if all := timeRe.FindAllStringSubmatch(output, -1); len(all) > 0 {
		m := all[len(all)-1]
		return parseTimeComponents(m[1], m[2], m[3], m[4]), nil
	}
	return 0, ErrNoDuration
}

// parseTimeComponents converts HH:MM:SS.frac strings to a Duration with
// millisecond precision.
func parseTimeComponents(hours, minutes, seconds, fractional string) time.Duration {
	h, _ := strconv.Atoi(hours)
	m, _ := strconv.Atoi(minutes)
	s, _ := strconv.Atoi(seconds)

	// Normalize the fraction to 3 digits (".4" -> 400ms, ".456789" -> 456ms).
	for len(fractional) < 3 {
		fractional += "0"
	}
	ms, _ := strconv.Atoi(fractional[:3])

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond
}
