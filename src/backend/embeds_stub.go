//go:build !embed

package main

import "embed"

// Empty without the embed tag; the model is read from Detector.ModelDir
var modelFiles embed.FS
