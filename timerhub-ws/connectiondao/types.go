package connectiondao

import "github.com/savaki/ddb"

// Identity is the forward record: one item per (user, device) pair holding
// the set of live connection ids for that device. A pair may hold several
// concurrent connections (foreground + background socket, reconnect races).
type Identity struct {
	PK        string        `dynamodbav:"pk" ddb:"hash"`
	UserID    string        `dynamodbav:"user_id" ddb:"gsi_hash:UserIndex"`
	DeviceID  string        `dynamodbav:"device_id"`
	Endpoint  string        `dynamodbav:"endpoint"`
	Handles   ddb.StringSet `dynamodbav:"handles,omitempty"`
	UpdatedAt int64         `dynamodbav:"updated_at"`
}

// Handle is the reverse record, resolving a single connection id back to its
// (user, device) so disconnect cleanup needs no caller-supplied context.
// TTL expires records for connections that never said goodbye.
type Handle struct {
	ConnectionID string `dynamodbav:"pk" ddb:"hash"`
	UserID       string `dynamodbav:"user_id"`
	DeviceID     string `dynamodbav:"device_id"`
	Endpoint     string `dynamodbav:"endpoint"`
	ConnectedAt  int64  `dynamodbav:"connected_at"`
	TTL          int64  `dynamodbav:"ttl"`
}

// HandleRef is one deliverable connection for fanout.
type HandleRef struct {
	DeviceID     string
	ConnectionID string
	Endpoint     string
}

// IdentityKey is the forward-table partition key for a (user, device) pair.
func IdentityKey(userID, deviceID string) string {
	return "USER#" + userID + "#DEV#" + deviceID
}
