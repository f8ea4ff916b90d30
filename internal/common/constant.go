// Package common contains shared constants and sentinel errors used across
// PocketDesk components.
package common

// APIKeyHeaderName is the HTTP header carrying the relay API key on entity
// mutation, entity read, and bot ingress requests.
const APIKeyHeaderName = "X-Api-Key"

// SessionTokenHeaderName is the HTTP header carrying the device session token
// on pairing-scoped requests (device registration, unpair).
const SessionTokenHeaderName = "X-Session-Token"
