// Package secure keeps sensitive strings, such as cached Cerberus tokens,
// encrypted while they sit in process memory.
//
// It wraps the memguard library. A Sealed value holds its plaintext inside a
// memguard.Enclave (XSalsa20Poly1305 encrypted, guard-paged) and only decrypts
// it into a locked buffer for the duration of Reveal.
//
// # Usage
//
//	sealed, err := secure.Seal(token)
//	if err != nil {
//	    return err
//	}
//	defer sealed.Destroy()
//
//	plain, err := sealed.Reveal()
//
// # Platform Behavior
//
// Memory locking depends on RLIMIT_MEMLOCK on Linux. When mlock is
// unavailable memguard falls back to ordinary memory; the enclave contents
// remain encrypted either way.
//
// It does NOT protect against attackers with access to the running process.
package secure
