// Package subscriptionmanager implements the oracle-gated verification
// workflow that feeds the subscription ledger.
//
// Layering:
// - domain: verification requests, state machine, errors
// - application: verification service, fund custody, administrative overrides
// - application/workers: outbox relay and timeout sweeper
// - ports: stable boundaries for persistence, oracle, vault, and events
// - adapters: concrete HTTP, memory, redis, postgres, and oracle clients
// - transport: module-private DTOs for HTTP contracts
//
// Boundary notes:
// - The ledger is reached only through ports.SubscriptionStore; the manager
//   principal must hold the ledger's writer role.
// - A request id transitions out of the requested state exactly once; late or
//   duplicated oracle callbacks are silently ignored.
// - Oracle execution cost leaves custody at dispatch; the retained excess
//   stays in the vault until withdrawal, refund, or timeout.
package subscriptionmanager
