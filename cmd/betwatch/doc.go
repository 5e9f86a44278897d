// Command betwatch watches a live stream's betting HUD and alerts when a
// round opens.
//
// Run without arguments to start the watcher with the resolved
// configuration. Subcommands inspect stream variants, parse HUD text
// offline, send a test alert, serve OCR over gRPC, and tail the event feed.
package main
