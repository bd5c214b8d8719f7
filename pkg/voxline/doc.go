// ABOUTME: High-level Voxline library API
// ABOUTME: Provides the Client API for voice and text conversations
// Package voxline provides a high-level client for live voice
// conversations with a remote conversational AI service, with a
// turn-based text and image fallback sharing the same audio output.
//
// Example:
//
//	client, err := voxline.New(ctx, voxline.Config{
//	    APIKey:      os.Getenv("VOXLINE_API_KEY"),
//	    GatewayAddr: "localhost:9040",
//	    OnHistoryChanged: func(msgs []voxline.Message) { ... },
//	})
//	err = client.StartVoice(ctx)
//	err = client.SendText(ctx, "hello")
//
// For lower-level control, see the internal capture, playback, session,
// and chat packages.
package voxline
