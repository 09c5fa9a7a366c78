package statestore

import "fmt"

// Redis key pattern helpers
//
// All keys are namespaced by instance name so multiple Warren instances can
// safely coexist on a single Redis server.
//
// Key pattern: warren:{instance_name}:{entity}:{bot_id}

// StateKey returns the Redis key for a bot's state hash.
// Pattern: warren:{instance_name}:botstate:{bot_id}
func StateKey(instanceName, botID string) string {
	return fmt.Sprintf("warren:%s:botstate:%s", instanceName, botID)
}

// StateSizeKey returns the Redis key for a bot's running state-size counter.
// The counter tracks the summed entry sizes of the state hash and is updated
// in the same transaction as every entry write.
// Pattern: warren:{instance_name}:botstate_size:{bot_id}
func StateSizeKey(instanceName, botID string) string {
	return fmt.Sprintf("warren:%s:botstate_size:%s", instanceName, botID)
}
