package user

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// hashParams bundles the Argon2id cost settings. Every encoded hash carries
// its own parameters, so defaults can be raised later without invalidating
// credentials already on disk.
type hashParams struct {
	memory  uint32 // KiB
	passes  uint32
	threads uint8
	saltLen int
	keyLen  uint32
}

// defaultHashParams follows the OWASP 2025 guidance for Argon2id:
// 64 MiB, 3 passes, single lane.
var defaultHashParams = hashParams{
	memory:  64 * 1024,
	passes:  3,
	threads: 1,
	saltLen: 16,
	keyLen:  32,
}

// HashPassword derives an Argon2id hash of password with a fresh random salt
// and returns it in PHC string form.
func HashPassword(password string) (string, error) {
	return hashWith(defaultHashParams, password)
}

func hashWith(p hashParams, password string) (string, error) {
	salt := make([]byte, p.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, p.passes, p.memory, p.threads, p.keyLen)
	return encodePHC(p, salt, key), nil
}

// VerifyPassword reports whether password matches an encoded hash. Cost
// parameters are read from the hash itself, and the comparison runs in
// constant time.
func VerifyPassword(password, encoded string) (bool, error) {
	p, salt, key, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, p.passes, p.memory, p.threads, uint32(len(key))) //nolint:gosec // G115: key length always fits uint32
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

// encodePHC renders $argon2id$v=19$m=...,t=...,p=...$<salt>$<key> with
// unpadded base64, the encoding the PHC format prescribes.
func encodePHC(p hashParams, salt, key []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$argon2id$v=%d$", argon2.Version)
	fmt.Fprintf(&b, "m=%d,t=%d,p=%d$", p.memory, p.passes, p.threads)
	b.WriteString(base64.RawStdEncoding.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(base64.RawStdEncoding.EncodeToString(key))
	return b.String()
}

// decodePHC splits an encoded hash into its parameters, salt, and key.
func decodePHC(encoded string) (hashParams, []byte, []byte, error) {
	var p hashParams

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 { //nolint:mnd // PHC strings have exactly 6 $-delimited fields
		return p, nil, nil, errors.New("malformed password hash")
	}
	if fields[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("unexpected hash algorithm %q", fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("parsing hash version: %w", err)
	}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.passes, &p.threads); err != nil {
		return p, nil, nil, fmt.Errorf("parsing hash parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decoding salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decoding key: %w", err)
	}

	return p, salt, key, nil
}
