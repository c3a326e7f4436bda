// Package api holds the request and response bodies of the gateway HTTP API.
//
// # API Overview
//
// The gateway exposes:
//   - POST /callback/endpoint-data-reference, where peers deliver endpoint data
//   - /api/v1/negotiations for starting, listing and deactivating negotiations
//   - /api/v1/endpoints for reading a cached endpoint (credential redacted)
//   - /api/v1/negotiations/events, a websocket feed of state changes
//   - /api/v1/skills for the skill text store
//   - /health, /healthz, /ready and /version
//
// # Authentication
//
// Everything below /api/ requires the X-API-Key header or a bearer JWT when
// keys or a JWT secret are configured:
//
//	X-API-Key: your-api-key
//
// The callback path is never authenticated by the gateway; peers reach it
// through their own connector.
//
// # Base URL
//
//	http://localhost:8080
package api
