// Package phoneauth implements phone-number authentication that bridges two
// independent identity systems: an external phone-verification provider (which
// issues and checks one-time codes, gated by an anti-automation challenge
// widget) and a backend identity store (which owns the durable session and
// profile records).
//
// The package is built through [Builder.Build] into an immutable [Engine].
// Engine methods are safe to call from multiple goroutines. Per-attempt UI
// state (mode, form data, the in-flight gate) lives in a [Flow], created via
// [Engine.NewFlow]; a Flow serializes its own submits and is the surface the
// presentation layer talks to.
//
// # Architecture boundaries
//
// phoneauth is the public surface. It exposes [Engine], [Builder], [Config],
// [Flow], the collaborator interfaces ([PhoneVerifier], [ChallengeHost],
// [IdentityStore]) and value types. Handle storage, cooldown accounting, and
// the bridge's in-flight guard are Redis-backed and never exported.
//
// # What this package must NOT do
//
//   - Expose the Redis client, record encodings, or widget internals in its
//     public API.
//   - Talk to a real verification provider or identity store; both are
//     injected. [SimulatedVerifier], [SimulatedChallengeHost], and
//     [MemoryIdentityStore] are the bundled dev/test implementations.
//   - Create more than one backend profile for a phone number, under any
//     interleaving of retries.
//
// # Failure contract
//
// Every provider or store failure is converted to a sentinel error from
// errors.go before it crosses a component boundary; callers never see a raw
// provider error. After any failure during an OTP attempt the challenge
// widget is reset, so the next send always starts from a clean widget.
package phoneauth
