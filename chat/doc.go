// Package chat is the ingestion core of chatter.
//
// It defines the platform-agnostic Message, the per-account Adapter contract and
// its lifecycle (Base), the fan-in Bus that merges every adapter's output into a
// single ordered stream, and the Aggregator that builds adapters from a
// configuration Snapshot and tears them down again on reload.
//
// Data flow:
//
//	Snapshot -> Aggregator -> one Adapter per (platform, slot) -> Bus -> Consume -> Renderer
//
// Adapters never return errors to the Aggregator. Connection problems are logged
// and leave the adapter in StateFailed (or StateDisconnected when the account is
// simply not live); the rest of the system keeps running.
package chat
