package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (engine logs)
// so crash output survives the process.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// SplitCommandLine breaks a command line like "python3 -u engine.py" into a
// program and its arguments. Quoting is not supported.
func SplitCommandLine(line string) (string, []string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty command line")
	}
	return fields[0], fields[1:], nil
}

// ShowError prints the watchlist error box and, if a SafeCommand is provided,
// whatever the child process wrote to stderr.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 WATCHLIST ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}
	if s != nil && s.Stderr != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nENGINE LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die shows the error box and exits with status 1.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Video Stream Helpers ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is a bufio.SplitFunc that yields whole JPEG images from an MJPEG
// byte stream, using the SOI (FFD8) and EOI (FFD9) markers.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// IsVideoFile reports whether source names a regular file on disk, as opposed
// to a camera index, a device node or a stream URL.
func IsVideoFile(source string) bool {
	info, err := os.Stat(source)
	return err == nil && info.Mode().IsRegular()
}

// NewFFmpegCmd creates a decoder that re-encodes any ffmpeg-readable input
// (file, RTSP/HTTP URL, v4l2 device) to an MJPEG stream on stdout. fps > 0
// caps the output rate.
func NewFFmpegCmd(ctx context.Context, input string, fps int) *exec.Cmd {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if strings.HasPrefix(input, "/dev/video") {
		args = append(args, "-f", "v4l2")
	}
	args = append(args, "-i", input)
	if fps > 0 {
		args = append(args, "-r", fmt.Sprint(fps))
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-")
	return exec.CommandContext(ctx, "ffmpeg", args...)
}
