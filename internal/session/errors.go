// ABOUTME: User-visible error messages for session failures
// ABOUTME: Maps typed capture and channel causes to actionable text
package session

import (
	"errors"
	"fmt"

	"github.com/voxline/voxline-go/internal/capture"
)

// User-visible messages for the capture-time failures a user can act on.
const (
	msgPermissionDenied = "Microphone access was denied. Please allow microphone access in your system settings to use voice chat."
	msgDeviceNotFound   = "No microphone was found. Please connect a microphone and try again."
)

// captureErrorMessage renders a microphone failure for the user.
func captureErrorMessage(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return msgPermissionDenied
	case errors.Is(err, capture.ErrDeviceNotFound):
		return msgDeviceNotFound
	default:
		return fmt.Sprintf("Could not access microphone: %v", err)
	}
}

// connectErrorMessage renders a channel-open failure.
func connectErrorMessage(err error) string {
	return fmt.Sprintf("Failed to start session: %v", err)
}

// runtimeErrorMessage renders a fatal error on an established channel.
func runtimeErrorMessage(err error) string {
	return fmt.Sprintf("Session error: %v", err)
}
