package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"

	"go2tv.app/screenrec/recorder"
)

func printOK(out io.Writer, format string, args ...any) {
	printTagged(out, "[OK]", format, args...)
}

func printWarn(out io.Writer, format string, args ...any) {
	printTagged(out, "[WARN]", format, args...)
}

func printError(out io.Writer, format string, args ...any) {
	printTagged(out, "[ERROR]", format, args...)
}

func printHint(out io.Writer, format string, args ...any) {
	printTagged(out, "Hint:", format, args...)
}

func printTagged(out io.Writer, tag, format string, args ...any) {
	fmt.Fprintf(out, "%s %s\n", tag, fmt.Sprintf(format, args...))
}

func describeReason(r recorder.Reason) string {
	switch r {
	case recorder.ReasonAudioUnavailable:
		return "Audio: unavailable, recording video only"
	case recorder.ReasonHooksUnavailable:
		return "Input hooks: unavailable, the interaction log may be empty or partial"
	case recorder.ReasonFrameBudget:
		return "Memory budget reached: capture stopped early"
	case recorder.ReasonNoFrames:
		return "No frames were captured"
	case recorder.ReasonCaptureFailed:
		return "Screen capture failed"
	default:
		return string(r)
	}
}

func printArtifacts(out io.Writer, art recorder.Artifacts) {
	if art == (recorder.Artifacts{}) {
		printWarn(out, "Nothing captured, no files written")
		return
	}
	if art.VideoPath != "" {
		printOK(out, "Video: %s (%s)", art.VideoPath, fileSize(art.VideoPath))
	} else {
		printWarn(out, "Video: not saved")
	}
	if art.InteractionsPath != "" {
		printOK(out, "Interactions: %s (%s)", art.InteractionsPath, fileSize(art.InteractionsPath))
	}
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "size unknown"
	}
	return humanize.Bytes(uint64(info.Size()))
}
