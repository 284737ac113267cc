// Package api defines the request and response types of the chatdigest HTTP API.
//
// # API Overview
//
// chatdigest exposes a small RESTful API:
//   - POST /api/v1/compress      compress a transcript into a target model's budget
//   - POST /api/v1/parse         parse a transcript export into messages
//   - GET  /api/v1/models        list target models with their token limits
//   - POST /api/download         return text as a plain-text attachment
//   - GET  /health, /ready       liveness and readiness checks
//
// The legacy paths /api/compress-context, /api/parse, /api/upload and
// /api/llm-types are served by the same handlers.
//
// # Authentication
//
// When API keys are configured, requests must carry one of them:
//
//	X-API-Key: your-api-key
//
// When a JWT secret is configured, an HS256 bearer token is accepted instead:
//
//	Authorization: Bearer <token>
//
// # Errors
//
// Most endpoints wrap results in the handlers.Response envelope. The compress
// endpoint returns CompressResponse directly and, when too many chunks fail to
// summarize, a CompressionFailedResponse carrying the original content so the
// client can fall back to it.
package api
