package session

import "context"

// Store persists sessions and translates them to and from cookie values.
type Store interface {
	// Load resolves a cookie value. It returns serviceerr.ErrNotFound when
	// the value does not identify a live session.
	Load(ctx context.Context, value string) (Data, error)
	// Save persists data and returns the cookie value referring to it.
	Save(ctx context.Context, data Data) (string, error)
}

// Repository keeps sessions on the server side, keyed by session ID.
type Repository interface {
	LoadSession(ctx context.Context, sessionID string) (Data, error)
	StoreSession(ctx context.Context, data Data) error
}
