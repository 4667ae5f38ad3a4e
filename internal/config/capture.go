package config

import "runtime"

// defaultCaptureFormat is the ffmpeg input device family for the current OS
func defaultCaptureFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}
