package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/andresmejia3/watchlist/internal/loader"
	"github.com/andresmejia3/watchlist/internal/types"
	"github.com/andresmejia3/watchlist/internal/utils"
)

const (
	statusOK    byte = 0
	statusError byte = 1

	// maxFeatureDim guards against reading garbage as a huge vector.
	maxFeatureDim = 4096
	maxFaces      = 1024
)

// ProcessEngine drives an external face engine (for example a face_recognition
// script) over a binary protocol:
//
//	request  (stdin): [uint32 len][JPEG bytes]
//	response (FD 3):  [uint32 len][payload]
//	payload OK:    [0][uint32 faces] then per face [4]int32 top,right,bottom,left, [uint32 dim], dim x float32
//	payload error: [1][uint32 msgLen][msg]
//
// All integers are big-endian. The engine's stdout/stderr stay free for logs.
type ProcessEngine struct {
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
}

// StartProcess launches commandLine (e.g. "python3 -u engine/face_engine.py").
func StartProcess(ctx context.Context, commandLine string) (*ProcessEngine, error) {
	name, args, err := utils.SplitCommandLine(commandLine)
	if err != nil {
		return nil, err
	}
	proc := utils.NewSafeCommand(ctx, name, args...)

	// Side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	proc.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := proc.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("engine %q failed to start: %w", name, err)
	}

	// Only the child holds the write end now
	w.Close()

	return &ProcessEngine{
		Cmd:      proc,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate sends one length-prefixed request and reads one length-prefixed response.
func (e *ProcessEngine) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(e.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := e.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(e.DataPipe, header); err != nil {
		return nil, err // a crashed engine surfaces here as EOF
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(e.DataPipe, respBody)
	return respBody, err
}

// DetectBytes runs detection on an encoded image.
func (e *ProcessEngine) DetectBytes(img []byte) ([]types.DetectedFace, error) {
	resp, err := e.Communicate(img)
	if err != nil {
		return nil, err
	}
	return decodeFaces(resp)
}

// Detect implements Engine.
func (e *ProcessEngine) Detect(ctx context.Context, frame types.Frame) ([]types.DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.DetectBytes(frame.Data)
}

// Extract implements Engine. Pipe failures are fatal for the loader since the
// engine process is gone; engine-reported errors only skip the file.
func (e *ProcessEngine) Extract(ctx context.Context, path string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	resp, err := e.Communicate(img)
	if err != nil {
		return nil, loader.AsFatal(fmt.Errorf("engine pipe: %w", err))
	}
	faces, err := decodeFaces(resp)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, loader.ErrNoFace
	}
	return faces[0].Feature, nil
}

// Close shuts the engine down and waits for it to exit.
func (e *ProcessEngine) Close() error {
	if e.Stdin != nil {
		e.Stdin.Close()
	}
	if e.DataPipe != nil {
		e.DataPipe.Close()
	}
	if e.Cmd != nil {
		return e.Cmd.Wait()
	}
	return nil
}

func decodeFaces(payload []byte) ([]types.DetectedFace, error) {
	r := bytes.NewReader(payload)
	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty engine response: %w", err)
	}

	if status == statusError {
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("malformed engine error: %w", err)
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed engine error: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrEngine, msg)
	}
	if status != statusOK {
		return nil, fmt.Errorf("unknown engine status %d", status)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("malformed face count: %w", err)
	}
	if count > maxFaces {
		return nil, fmt.Errorf("engine reported %d faces", count)
	}

	faces := make([]types.DetectedFace, 0, count)
	for i := uint32(0); i < count; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d box: %w", i, err)
		}
		var dim uint32
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return nil, fmt.Errorf("face %d dim: %w", i, err)
		}
		if dim > maxFeatureDim {
			return nil, fmt.Errorf("face %d has %d dimensions", i, dim)
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.BigEndian, vec); err != nil {
			return nil, fmt.Errorf("face %d vector: %w", i, err)
		}
		for _, v := range vec {
			if math.IsNaN(float64(v)) {
				return nil, fmt.Errorf("face %d vector contains NaN", i)
			}
		}
		faces = append(faces, types.DetectedFace{
			Box:     types.BoundingBox{Top: int(box[0]), Right: int(box[1]), Bottom: int(box[2]), Left: int(box[3])},
			Feature: vec,
		})
	}
	return faces, nil
}
