// Package password hashes and verifies account passwords.
//
// # Algorithms
//
// [Bcrypt] is the default, with a tunable work factor (12 unless configured).
// [Argon2] emits PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] verifies whichever algorithm produced a stored hash and reports
// NeedsUpgrade for hashes that should be re-encoded on the next successful
// login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length, confirmation match) is enforced by the Engine.
package password
