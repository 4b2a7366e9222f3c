// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the arena handler. These give clients
// more specific closure reasons than the standard set.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided auth token was invalid or expired.
	ServerShuttingDown    = 3002 // Server is draining connections.
)
