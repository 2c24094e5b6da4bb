package session

// Role identifies which side of the queue a data connection serves.
type Role byte

const (
	// RoleProducer marks a connection that feeds frames into the queue.
	RoleProducer Role = 'P'
	// RoleConsumer marks a connection that drains frames from the queue.
	RoleConsumer Role = 'C'
)

// TokenSize is the length in bytes of a session token.
const TokenSize = 16
