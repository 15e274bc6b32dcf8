package domain

import "strings"

// BuildIdempotencyKey scopes a client-supplied key to the caller and flow.
// Format: "username:flow:key".
func BuildIdempotencyKey(username string, eventType EventType, clientKey string) string {
	return username + ":" + strings.ToLower(string(eventType)) + ":" + clientKey
}
