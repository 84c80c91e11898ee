// Package app contains the core application logic. It loads a document,
// runs the lifecycle engine over it, replays scripted events and renders the
// result, decoupled from any specific entrypoint like a CLI or server.
package app
