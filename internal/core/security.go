// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost profile. Changing any value makes older hashes
// eligible for a rehash on the next successful login.
const (
	hashIterations  = 1
	hashMemoryKiB   = 64 * 1024
	hashParallelism = 4
	hashKeyBytes    = 32
	hashSaltBytes   = 16
)

type hashProfile struct {
	iterations  uint32
	memoryKiB   uint32
	parallelism uint8
	keyBytes    uint32
}

var currentProfile = hashProfile{
	iterations:  hashIterations,
	memoryKiB:   hashMemoryKiB,
	parallelism: hashParallelism,
	keyBytes:    hashKeyBytes,
}

func HashPassword(password string) (string, error) {
	salt := make([]byte, hashSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return encodeHash(password, salt, currentProfile), nil
}

func encodeHash(password string, salt []byte, p hashProfile) string {
	derived := argon2.IDKey(
		[]byte(password),
		salt,
		p.iterations,
		p.memoryKiB,
		p.parallelism,
		p.keyBytes,
	)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.memoryKiB,
		p.iterations,
		p.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(derived),
	)
}

func VerifyPassword(password, encodedHash string) (bool, error) {
	p, salt, want, err := parseHash(encodedHash)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey(
		[]byte(password),
		salt,
		p.iterations,
		p.memoryKiB,
		p.parallelism,
		p.keyBytes,
	)

	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// VerifyPasswordWithRehash additionally returns a replacement hash when
// the stored one was produced under an older cost profile. An empty
// string means the stored hash is still current.
func VerifyPasswordWithRehash(
	password, encodedHash string,
) (bool, string, error) {
	valid, err := VerifyPassword(password, encodedHash)
	if err != nil || !valid {
		return false, "", err
	}

	if staleHash(encodedHash) {
		if newHash, hashErr := HashPassword(password); hashErr == nil {
			return true, newHash, nil
		}
		// Verification already succeeded, losing the rehash is fine.
	}

	return true, "", nil
}

var decoyOnce sync.Once
var decoyHash string

func decoy() string {
	decoyOnce.Do(func() {
		h, err := HashPassword("decoy-credential-for-constant-work")
		if err != nil {
			panic(fmt.Sprintf("security: decoy hash: %v", err))
		}
		decoyHash = h
	})
	return decoyHash
}

// VerifyPasswordTimingSafe burns the same argon2 work whether or not
// the account exists, so login latency never reveals valid emails.
func VerifyPasswordTimingSafe(
	password string,
	encodedHash *string,
) (bool, string, error) {
	stored := decoy()
	if encodedHash != nil && *encodedHash != "" {
		stored = *encodedHash
	}

	valid, newHash, err := VerifyPasswordWithRehash(password, stored)

	if encodedHash == nil || *encodedHash == "" {
		return false, "", nil
	}

	return valid, newHash, err
}

func parseHash(encoded string) (hashProfile, []byte, []byte, error) {
	var p hashProfile

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("malformed password hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("parse hash version: %w", err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("argon2 version %d not supported", version)
	}

	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&p.memoryKiB, &p.iterations, &p.parallelism)
	if err != nil {
		return p, nil, nil, fmt.Errorf("parse hash params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decode salt: %w", err)
	}

	derived, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decode derived key: %w", err)
	}

	//nolint:gosec // G115: derived keys are 32 bytes
	p.keyBytes = uint32(len(derived))

	return p, salt, derived, nil
}

func staleHash(encoded string) bool {
	p, _, _, err := parseHash(encoded)
	if err != nil {
		return true
	}
	return p != currentProfile
}

func GenerateSecureToken(length int) (string, error) {
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

func GenerateRefreshToken() (string, error) {
	return GenerateSecureToken(32)
}

// HashToken is for opaque tokens stored server side. SHA-256 is enough
// because the input already carries 256 bits of entropy.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func CompareTokenHash(token, hash string) bool {
	return subtle.ConstantTimeCompare(
		[]byte(HashToken(token)),
		[]byte(hash),
	) == 1
}
