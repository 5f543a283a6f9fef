// Package probe resolves clip references into the properties pre-flight
// validation needs: existence, duration, size.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"clipcompare/internal/domain"
	"clipcompare/internal/domain/ports/adapter"
)

var _ adapter.Prober = (*FFProbe)(nil)

// FFProbe shells out to ffprobe for clip metadata. One JSON call per clip.
type FFProbe struct{}

func NewFFProbe() *FFProbe { return &FFProbe{} }

func (p *FFProbe) Probe(ctx context.Context, ref string) (*adapter.ClipInfo, error) {
	if _, err := os.Stat(ref); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", ref, domain.ErrFileNotFound)
		}
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		ref,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", ref, err)
	}
	return ParseJSON(out)
}

// ParseJSON converts raw ffprobe JSON output into a ClipInfo.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*adapter.ClipInfo, error) {
	var raw struct {
		Format struct {
			Duration string `json:"duration"`
			Size     string `json:"size"`
		} `json:"format"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	info := &adapter.ClipInfo{}
	if secs, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(secs * float64(time.Second))
	}
	if size, err := strconv.ParseInt(raw.Format.Size, 10, 64); err == nil {
		info.SizeBytes = size
	}
	return info, nil
}

var _ adapter.Prober = (*StatProbe)(nil)

// StatProbe is the dev-mode prober: existence and size from the filesystem,
// no duration check (reported as zero, which always passes the limit).
type StatProbe struct{}

func NewStatProbe() *StatProbe { return &StatProbe{} }

func (p *StatProbe) Probe(ctx context.Context, ref string) (*adapter.ClipInfo, error) {
	fi, err := os.Stat(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", ref, domain.ErrFileNotFound)
		}
		return nil, err
	}
	return &adapter.ClipInfo{SizeBytes: fi.Size()}, nil
}
