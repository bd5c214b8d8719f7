// ABOUTME: Build identity constants
// ABOUTME: Reported to the live gateway during channel setup
package version

const (
	Product      = "Voxline"
	Manufacturer = "Voxline Project"
	Version      = "0.1.0"
)
