package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var ErrMalformedHash = errors.New("invalid argon2id hash format")

type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLen     uint32
	keyLen      uint32
}

var (
	passwordParams = argon2Params{
		memory:      64 * 1024,
		iterations:  3,
		parallelism: 2,
		saltLen:     16,
		keyLen:      32,
	}
	// Profile PINs; verification is rate limited at the HTTP layer.
	pinParams = argon2Params{
		memory:      19 * 1024,
		iterations:  2,
		parallelism: 1,
		saltLen:     16,
		keyLen:      32,
	}
)

type encodedHash struct {
	params argon2Params
	salt   []byte
	key    []byte
}

func HashPassword(plaintext string) (string, error) {
	return hashWithParams(plaintext, passwordParams)
}

func VerifyPassword(hash, plaintext string) (bool, error) {
	h, err := decodeHash(hash)
	if err != nil {
		return false, err
	}
	return h.matches(plaintext), nil
}

func HashPIN(pin string) (string, error) {
	return hashWithParams(pin, pinParams)
}

func VerifyPIN(hash, pin string) bool {
	if hash == "" {
		return false
	}
	h, err := decodeHash(hash)
	if err != nil {
		return false
	}
	return h.matches(pin)
}

var (
	dummyOnce sync.Once
	dummyHash encodedHash
)

// BurnPasswordCheck runs one full password verification against a fixed
// hash. Login calls it for unknown emails so the response time does not
// reveal whether the account exists.
func BurnPasswordCheck(plaintext string) {
	dummyOnce.Do(func() {
		raw, err := hashWithParams("not-a-real-password", passwordParams)
		if err != nil {
			return
		}
		dummyHash, _ = decodeHash(raw)
	})
	if dummyHash.key == nil {
		return
	}
	_ = dummyHash.matches(plaintext)
}

func (h encodedHash) matches(plaintext string) bool {
	p := h.params
	other := argon2.IDKey([]byte(plaintext), h.salt, p.iterations, p.memory, p.parallelism, p.keyLen)
	return subtle.ConstantTimeCompare(h.key, other) == 1
}

func hashWithParams(plaintext string, p argon2Params) (string, error) {
	salt := make([]byte, p.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, p.iterations, p.memory, p.parallelism, p.keyLen)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.memory,
		p.iterations,
		p.parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

func decodeHash(hash string) (encodedHash, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return encodedHash{}, ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return encodedHash{}, errors.New("unsupported argon2 version")
	}

	var p argon2Params
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return encodedHash{}, errors.New("invalid argon2 params")
		}
		bits := 32
		if k == "p" {
			bits = 8
		}
		n, err := strconv.ParseUint(v, 10, bits)
		if err != nil || n == 0 {
			return encodedHash{}, fmt.Errorf("invalid argon2 param %q", k)
		}
		switch k {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.iterations = uint32(n)
		case "p":
			p.parallelism = uint8(n)
		default:
			return encodedHash{}, fmt.Errorf("unknown argon2 param %q", k)
		}
	}
	if p.memory == 0 || p.iterations == 0 || p.parallelism == 0 {
		return encodedHash{}, errors.New("missing argon2 params")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return encodedHash{}, errors.New("invalid argon2 salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return encodedHash{}, errors.New("invalid argon2 key")
	}
	p.saltLen = uint32(len(salt))
	p.keyLen = uint32(len(key))

	return encodedHash{params: p, salt: salt, key: key}, nil
}
