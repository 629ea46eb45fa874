// Package config provides environment helpers for go-ptzscan commands.
package config

import "os"

// Defaults used when neither a flag nor the environment provides a value.
const (
	DefaultPTZServerURL = "http://localhost:8000"
	DefaultCameraUser   = "admin"
	DefaultServerPort   = "8000"
)

// Env returns the value of key, or fallback when it is unset or empty.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// PTZServerURL returns the camera façade URL from PTZ_SERVER_URL.
func PTZServerURL() string {
	return Env("PTZ_SERVER_URL", DefaultPTZServerURL)
}

// CameraIP returns the camera address from CAMERA_IP, or "" if unset.
func CameraIP() string {
	return os.Getenv("CAMERA_IP")
}

// CameraUser returns the camera account from CAMERA_USER or the default.
func CameraUser() string {
	return Env("CAMERA_USER", DefaultCameraUser)
}

// CameraPass returns CAMERA_PASS. There is no default password.
func CameraPass() string {
	return os.Getenv("CAMERA_PASS")
}

// GoogleAPIKey returns the Gemini key from GOOGLE_API_KEY or GEMINI_API_KEY.
func GoogleAPIKey() string {
	if k := os.Getenv("GOOGLE_API_KEY"); k != "" {
		return k
	}
	return os.Getenv("GEMINI_API_KEY")
}

// GCSBucket returns PTZ_GCS_BUCKET, or "" when uploads are disabled.
func GCSBucket() string {
	return os.Getenv("PTZ_GCS_BUCKET")
}

// CaptureDir returns PTZ_CAPTURE_DIR, or "" when local captures are disabled.
func CaptureDir() string {
	return os.Getenv("PTZ_CAPTURE_DIR")
}

// GroundingURL returns the Florence grounding sidecar URL.
func GroundingURL() string {
	return Env("PTZ_GROUNDING_URL", "http://localhost:8100")
}
