// ABOUTME: Shared test helpers for the playback package
// ABOUTME: Provides a no-op logger for scheduler tests
package playback

import "go.uber.org/zap"

func testLogger() *zap.Logger {
	return zap.NewNop()
}
