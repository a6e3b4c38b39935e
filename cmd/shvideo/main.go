// Command shvideo drives the decode sink and the encoder element from the
// command line, with the simulated codec standing in for the hardware.
//
//	shvideo play   -in stream.h264 -codec h264 -width 176 -height 144 -fps 25/1
//	shvideo encode -in frames.yuv -out stream.h264 -control encoder.yaml
package main

import (
	"fmt"
	"os"
)

const version = "v0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "shvideo %s\n\n", version)
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  shvideo play   [flags]   decode a compressed stream and pace it to a display\n")
	fmt.Fprintf(os.Stderr, "  shvideo encode [flags]   encode raw 4:2:0 frames into an elementary stream\n")
	fmt.Fprintf(os.Stderr, "  shvideo version\n\n")
	fmt.Fprintf(os.Stderr, "Run 'shvideo <command> -h' for the flags of a command.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "play":
		err = runPlay(os.Args[2:])
	case "encode":
		err = runEncode(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Printf("shvideo %s\n", version)
		return
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
