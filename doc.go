// Package voiceapi implements the voice-api service which bridges learner
// browsers to a realtime speech provider for voice tutoring sessions.
//
// The service provides:
//   - Websocket session relay between client and speech provider
//   - Pre-session identity verification via JWKS and daily quota gating
//   - Lesson-plan driven content reveal with provider tool calls
//   - Transcript persistence and per-session usage accounting
//   - Prometheus metrics and OpenTelemetry tracing
package voiceapi
