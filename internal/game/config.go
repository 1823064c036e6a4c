package game

// Config tunes connection-handler behavior that callers can turn off
// without touching the handler logic itself.
type Config struct {
	// DemoSideEffects enables the source's exploratory debugging behavior:
	// MovePlayer spawns a chicken at the new position, and Animate triggers
	// an Explode at the player's last known position. Defaults to true,
	// matching the original; with it false, MovePlayer and Animate produce
	// only their own broadcasts.
	DemoSideEffects bool
}

// DefaultConfig matches the original handler's always-on behavior.
func DefaultConfig() Config {
	return Config{DemoSideEffects: true}
}
