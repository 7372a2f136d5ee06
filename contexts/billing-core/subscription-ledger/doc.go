// Package subscriptionledger implements the authoritative subscription ledger
// inside tollgate.
//
// Layering:
// - domain: subscriber records, tier periods, invariants, errors
// - application: the authorization-gated ledger service
// - ports: stable boundaries for persistence and time
// - adapters: concrete HTTP, memory, and postgres implementations
// - transport: module-private DTOs for HTTP contracts
//
// Boundary notes:
// - Writes are granted only to the subscription-manager principal.
// - Expiration timestamps are monotonically non-decreasing per subscriber.
// - Payment legitimacy checks live in billing-core/subscription-manager.
package subscriptionledger
