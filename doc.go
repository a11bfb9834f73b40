// Package auth implements the passwordless authentication and tenant-scoped
// authorization core for a multi-tenant scheduling service.
//
// Magic links:
//   - LinkIssuer mints single-use, time-limited link tokens bound to a
//     (tenant, email) pair and hands delivery to an external LinkDelivery
//     collaborator. Raw token values never touch storage; only a BLAKE2b
//     hash is persisted.
//   - LinkVerifier consumes a token exactly once. The PENDING to CONSUMED
//     transition is a single conditional write, so concurrent verification
//     attempts resolve to one winner and the rest observe ErrLinkConsumed.
//
// Sessions:
//   - SessionManager exchanges a verified identity for an access/refresh
//     credential pair. Access credentials are short-lived self-verifying
//     JWTs; refresh credentials are opaque, store-backed, and rotated on
//     every use. Reuse of a rotated refresh credential revokes the whole
//     session family.
//
// Authorization:
//   - RoleRegistry holds role assignments (principal x role x optional
//     tenant scope) behind a closed role enumeration with an explicit
//     permission table. Guard middleware resolves the caller's session and
//     consults the registry on every protected route, reporting Forbidden
//     separately from Unauthenticated.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the issuer,
//     verifier, session manager, and registry. Sinks run best-effort
//     (errors are logged) so you can forward events to a database or queue
//     without blocking authentication.
package auth
