// Package cipher seals credential payloads with AES-256-GCM under keys
// derived from a master secret and a per-record salt with argon2id.
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"golang.org/x/crypto/argon2"
)

// MinMasterSecretLength is the minimum accepted master secret length in bytes
const MinMasterSecretLength = 32

const (
	saltSize = 16
	keySize  = 32
)

// KDFParams are the argon2id cost parameters
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams follow the argon2id recommendation for interactive use
var DefaultKDFParams = KDFParams{Time: 1, Memory: 64 * 1024, Threads: 4}

// Sealed is the at-rest form of one secret
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
	Salt       []byte
}

// Sealer encrypts and decrypts with keys derived from a master secret
type Sealer struct {
	master []byte
	params KDFParams
}

type Option func(*Sealer)

// WithKDFParams overrides the argon2id cost, mainly to keep tests fast
func WithKDFParams(p KDFParams) Option {
	return func(s *Sealer) {
		s.params = p
	}
}

func New(masterSecret string, opts ...Option) (*Sealer, error) {
	if len(masterSecret) < MinMasterSecretLength {
		return nil, goerr.New("master secret is too short",
			goerr.T(model.TagValidation), goerr.V("min_length", MinMasterSecretLength))
	}
	s := &Sealer{
		master: []byte(masterSecret),
		params: DefaultKDFParams,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LogValue keeps the master secret out of logs
func (s *Sealer) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("master_secret_len", len(s.master)),
		slog.Any("kdf_time", s.params.Time),
		slog.Any("kdf_memory_kib", s.params.Memory),
	)
}

func (s *Sealer) derive(salt []byte) []byte {
	return argon2.IDKey(s.master, salt, s.params.Time, s.params.Memory, s.params.Threads, keySize)
}

func (s *Sealer) aead(salt []byte) (gocipher.AEAD, error) {
	block, err := aes.NewCipher(s.derive(salt))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create block cipher")
	}
	gcm, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GCM")
	}
	return gcm, nil
}

// Seal encrypts plaintext with a fresh salt and nonce. aad binds the
// ciphertext to its record and must be passed unchanged to Open.
func (s *Sealer) Seal(plaintext, aad []byte) (*Sealed, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, goerr.Wrap(err, "failed to generate salt")
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, goerr.Wrap(err, "failed to generate nonce")
	}

	return &Sealed{
		Ciphertext: gcm.Seal(nil, nonce, plaintext, aad),
		Nonce:      nonce,
		Salt:       salt,
	}, nil
}

// Open authenticates and decrypts. Any tampering with ciphertext, nonce,
// salt or aad fails with a credential error.
func (s *Sealer) Open(sealed *Sealed, aad []byte) ([]byte, error) {
	if sealed == nil || len(sealed.Salt) != saltSize {
		return nil, goerr.New("malformed sealed payload", goerr.T(model.TagCredential))
	}

	gcm, err := s.aead(sealed.Salt)
	if err != nil {
		return nil, err
	}
	if len(sealed.Nonce) != gcm.NonceSize() {
		return nil, goerr.New("malformed nonce", goerr.T(model.TagCredential))
	}

	plaintext, err := gcm.Open(nil, sealed.Nonce, sealed.Ciphertext, aad)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decrypt credential", goerr.T(model.TagCredential))
	}
	return plaintext, nil
}
