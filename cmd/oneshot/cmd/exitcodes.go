package cmd

// Exit codes for the oneshot CLI
const (
	// ExitFailure indicates the request or command failed
	ExitFailure = 1
)
