package gstdisplay

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/shvideo/internal/codec"
)

// DefaultSink is the video sink used when Config.Sink is empty.
const DefaultSink = "autovideosink"

// pipelineElements holds the references needed for pushing and teardown.
type pipelineElements struct {
	pipeline *gst.Pipeline
	src      *app.Source
}

// capsString describes decoded pictures: NV12 (luma plane, interleaved CbCr).
func capsString(g codec.Geometry) string {
	return fmt.Sprintf("video/x-raw,format=NV12,width=%d,height=%d,framerate=%d/%d",
		g.Width, g.Height, g.Rate.Num, g.Rate.Den)
}

// createPipeline builds
//
//	appsrc → videoconvert → videoscale → <sink>
//
// left in the NULL state. The appsrc does not timestamp: frames arrive
// already paced, so the sink renders on arrival.
func createPipeline(g codec.Geometry, sinkName string) (*pipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString(capsString(g)))
	src.SetProperty("is-live", true)
	src.SetProperty("format", int(gst.FormatTime))
	src.SetProperty("block", true)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	if sinkName == "" {
		sinkName = DefaultSink
	}
	sink, err := gst.NewElement(sinkName)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", sinkName, err)
	}
	sink.SetProperty("sync", false)

	pipeline.AddMany(src.Element, converter, scaler, sink)
	if err := gst.ElementLinkMany(src.Element, converter, scaler, sink); err != nil {
		_ = destroyPipeline(&pipelineElements{pipeline: pipeline})
		return nil, fmt.Errorf("failed to link display pipeline: %w", err)
	}

	slog.Debug("gst-display: pipeline created",
		"caps", capsString(g),
		"sink", sinkName,
	)
	return &pipelineElements{pipeline: pipeline, src: src}, nil
}

// destroyPipeline sets the pipeline to NULL. Safe on nil.
func destroyPipeline(el *pipelineElements) error {
	if el == nil || el.pipeline == nil {
		return nil
	}
	if err := el.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}
