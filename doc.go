// Package walletauth implements the multi-step OTP login and phone-change
// orchestration for the Nimbus wallet backend: phone→email sequential login,
// guarded phone-number change, ephemeral session bookkeeping with TTL sweep,
// and fixed-window challenge rate limiting.
//
// The package is the public surface. It exposes [Engine], [Builder], [Config],
// the sentinel error taxonomy, and the integration interfaces
// ([ChallengeDelegate], [AvailabilityLookup], [IdentityMaterializer],
// [UserDirectory]). Session storage, rate limiting, and id generation live
// under internal/ and are never exported.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. Operations on the same session id
// are serialized end-to-end, including the challenge-delegate round trip, so
// attempt counters and step transitions cannot race.
//
// All ephemeral state (login sessions, phone-change sessions, rate-limit
// windows) is held in process memory and is not expected to survive a
// restart. Durable state — user records, long-lived sessions, access
// tokens — is delegated to the [IdentityMaterializer]; the default
// implementation lives in the identity subpackage.
package walletauth
