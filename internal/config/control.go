package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/e7canasta/shvideo/internal/codec"
)

// ControlFile holds the encoder tuning parameters, read once per session.
//
// Example:
//
//	format: h264
//	width: 176
//	height: 144
//	frame_rate: 15/1
//	chroma: interleaved
//	bitrate: 384000
//	i_frame_interval: 30
//	frame_num_resolution: 30
type ControlFile struct {
	Format             string `yaml:"format"`
	Width              int    `yaml:"width"`
	Height             int    `yaml:"height"`
	FrameRate          string `yaml:"frame_rate"`
	Chroma             string `yaml:"chroma"`
	Bitrate            int    `yaml:"bitrate"`
	IFrameInterval     int    `yaml:"i_frame_interval"`
	FrameNumResolution int    `yaml:"frame_num_resolution"`
}

// LoadControlFile reads and validates an encoder control file.
func LoadControlFile(path string) (*ControlFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("control file: read %s: %w", path, err)
	}
	var cf ControlFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("control file: parse %s: %w", path, err)
	}
	if err := cf.Validate(); err != nil {
		return nil, fmt.Errorf("control file %s: %w", path, err)
	}
	return &cf, nil
}

// Validate checks the fields and fills defaults.
func (c *ControlFile) Validate() error {
	if c.Format != "" {
		if _, err := codec.ParseFormat(c.Format); err != nil {
			return err
		}
	}
	if c.FrameRate != "" {
		if _, err := codec.ParseFrameRate(c.FrameRate); err != nil {
			return err
		}
	}
	if _, err := c.ChromaLayout(); err != nil {
		return err
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("picture size %dx%d must not be negative", c.Width, c.Height)
	}
	if c.Bitrate < 0 || c.IFrameInterval < 0 {
		return fmt.Errorf("bitrate and i_frame_interval must not be negative")
	}
	if c.FrameNumResolution <= 0 {
		c.FrameNumResolution = 30
	}
	return nil
}

// FormatValue returns the parsed format, FormatUnknown if absent.
func (c *ControlFile) FormatValue() codec.Format {
	f, err := codec.ParseFormat(c.Format)
	if err != nil {
		return codec.FormatUnknown
	}
	return f
}

// Rate returns the parsed frame rate, zero if absent.
func (c *ControlFile) Rate() codec.FrameRate {
	r, err := codec.ParseFrameRate(c.FrameRate)
	if err != nil {
		return codec.FrameRate{}
	}
	return r
}

// ChromaLayout maps the chroma field; empty means interleaved.
func (c *ControlFile) ChromaLayout() (codec.ChromaLayout, error) {
	switch strings.ToLower(c.Chroma) {
	case "", "interleaved", "nv12", "semiplanar":
		return codec.ChromaInterleaved, nil
	case "planar", "i420":
		return codec.ChromaPlanar, nil
	default:
		return codec.ChromaInterleaved, fmt.Errorf("chroma %q must be interleaved or planar", c.Chroma)
	}
}

// EncoderParams builds the hardware encoder parameters for a session with the
// given format and geometry (already resolved against caps).
func (c *ControlFile) EncoderParams(f codec.Format, g codec.Geometry) codec.EncoderParams {
	layout, _ := c.ChromaLayout()

	x10 := 0
	if g.Rate.Valid() {
		x10 = g.Rate.Num * 10 / g.Rate.Den
	}
	step := 1
	if fps := x10 / 10; fps > 0 && c.FrameNumResolution >= fps {
		step = c.FrameNumResolution / fps
	}

	return codec.EncoderParams{
		Format:             f,
		Geometry:           g,
		Chroma:             layout,
		FrameRateX10:       x10,
		Bitrate:            c.Bitrate,
		IFrameInterval:     c.IFrameInterval,
		FrameNumResolution: c.FrameNumResolution,
		FrameNumStep:       step,
	}
}
