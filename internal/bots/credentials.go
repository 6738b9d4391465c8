package bots

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/nacl/secretbox"
	"gopkg.in/yaml.v3"
)

const nonceSize = 24

// ErrCredential is returned when a credential indirection cannot be resolved.
var ErrCredential = errors.New("credential cannot be resolved")

// Credential is a secret given either literally or through an environment
// variable, optionally holding secretbox ciphertext.
//
//	token: xoxb-literal
//	token: {env_var: SLACK_TOKEN}
//	token: {enc_env_var: SLACK_TOKEN_ENC}
type Credential struct {
	Value     string
	EnvVar    string
	EncEnvVar string
}

// UnmarshalYAML accepts a scalar or a single-key indirection mapping.
func (c *Credential) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&c.Value)
	case yaml.MappingNode:
		var raw struct {
			EnvVar    string `yaml:"env_var"`
			EncEnvVar string `yaml:"enc_env_var"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		if raw.EnvVar == "" && raw.EncEnvVar == "" {
			return fmt.Errorf("line %d: credential mapping needs env_var or enc_env_var", node.Line)
		}
		c.EnvVar, c.EncEnvVar = raw.EnvVar, raw.EncEnvVar
		return nil
	default:
		return fmt.Errorf("line %d: credential must be a string or a mapping", node.Line)
	}
}

// MarshalYAML writes the same form UnmarshalYAML reads.
func (c Credential) MarshalYAML() (any, error) {
	switch {
	case c.EncEnvVar != "":
		return map[string]string{"enc_env_var": c.EncEnvVar}, nil
	case c.EnvVar != "":
		return map[string]string{"env_var": c.EnvVar}, nil
	default:
		return c.Value, nil
	}
}

// IsZero reports whether nothing was configured.
func (c Credential) IsZero() bool {
	return c.Value == "" && c.EnvVar == "" && c.EncEnvVar == ""
}

// KeySource returns the decryption key on demand.
type KeySource func() (*[32]byte, error)

// Resolve returns the plain secret.
func (c Credential) Resolve(key KeySource) (string, error) {
	switch {
	case c.EnvVar != "":
		v, ok := os.LookupEnv(c.EnvVar)
		if !ok {
			return "", fmt.Errorf("%w: environment variable %s is not set", ErrCredential, c.EnvVar)
		}
		return v, nil
	case c.EncEnvVar != "":
		v, ok := os.LookupEnv(c.EncEnvVar)
		if !ok {
			return "", fmt.Errorf("%w: environment variable %s is not set", ErrCredential, c.EncEnvVar)
		}
		if key == nil {
			return "", fmt.Errorf("%w: no secret key for %s", ErrCredential, c.EncEnvVar)
		}
		k, err := key()
		if err != nil {
			return "", err
		}
		plain, err := Open(k, v)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrCredential, c.EncEnvVar, err)
		}
		return plain, nil
	default:
		return c.Value, nil
	}
}

// KeyFromEnv reads a base64 encoded 32-byte key from an environment variable.
func KeyFromEnv(name string) KeySource {
	return func() (*[32]byte, error) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return nil, fmt.Errorf("%w: secret key variable %s is not set", ErrCredential, name)
		}
		return DecodeKey(v)
	}
}

// DecodeKey parses a base64 encoded 32-byte key.
func DecodeKey(s string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding secret key: %v", ErrCredential, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: secret key must be 32 bytes, got %d", ErrCredential, len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// GenerateKey returns a new random key, base64 encoded.
func GenerateKey() (string, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// Seal encrypts a secret for use with enc_env_var.
func Seal(key *[32]byte, plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, key)
	return base64.StdEncoding.EncodeToString(box), nil
}

// Open decrypts the output of Seal.
func Open(key *[32]byte, sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", errors.New("ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, key)
	if !ok {
		return "", errors.New("decryption failed")
	}
	return string(plain), nil
}
