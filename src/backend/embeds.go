//go:build embed

package main

import "embed"

// Embed model files so a single binary can run the ONNX detector
//
//go:embed model/quantized/*
var modelFiles embed.FS
