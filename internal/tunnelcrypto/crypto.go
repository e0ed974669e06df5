// Package tunnelcrypto implements the peer fabric's key exchange and frame
// encryption: finite-field Diffie-Hellman over the RFC 3526 modp14 group
// and AES-256-GCM with a packed iv‖tag‖ciphertext layout.
package tunnelcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// modp14Hex is the 2048-bit MODP group 14 prime from RFC 3526.
const modp14Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74" +
	"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437" +
	"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05" +
	"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB" +
	"9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF695581718" +
	"3995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF"

const (
	ivSize  = 12
	tagSize = 16
	// keyBits is the private exponent size. 256 bits of entropy is ample
	// against the ~110-bit strength of the 2048-bit group.
	keyBits = 256
)

var (
	modp14Prime, _ = new(big.Int).SetString(modp14Hex, 16)
	generator      = big.NewInt(2)
)

// primeSize is the group size in bytes; shared secrets are left-padded to it
// so both ends derive the same key regardless of leading zero bytes.
var primeSize = len(modp14Prime.Bytes())

// KeyPair is one side of a Diffie-Hellman exchange.
type KeyPair struct {
	private *big.Int
	public  *big.Int
}

// GenerateKeyPair produces a fresh DH keypair over the modp14 group.
func GenerateKeyPair() (*KeyPair, error) {
	max := new(big.Int).Lsh(big.NewInt(1), keyBits)
	private, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	// Keep the exponent well-formed: at least 2.
	private.Add(private, big.NewInt(2))

	public := new(big.Int).Exp(generator, private, modp14Prime)
	return &KeyPair{private: private, public: public}, nil
}

// PublicKey returns the base64-encoded public value.
func (kp *KeyPair) PublicKey() string {
	return base64.StdEncoding.EncodeToString(kp.public.Bytes())
}

// ComputeSecret derives the 32-byte shared key from the remote public value:
// SHA-256 over the raw shared secret.
func (kp *KeyPair) ComputeSecret(remotePublicB64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(remotePublicB64)
	if err != nil {
		return nil, fmt.Errorf("invalid remote public key encoding: %w", err)
	}
	remote := new(big.Int).SetBytes(raw)
	if remote.Sign() <= 0 || remote.Cmp(modp14Prime) >= 0 {
		return nil, errors.New("remote public key out of range")
	}

	shared := new(big.Int).Exp(remote, kp.private, modp14Prime)
	padded := make([]byte, primeSize)
	shared.FillBytes(padded)

	key := sha256.Sum256(padded)
	return key[:], nil
}

// Encrypt seals plaintext with AES-256-GCM under key and returns the packed
// base64 payload: iv ‖ tag ‖ ciphertext.
func Encrypt(key, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	// Go appends the tag to the ciphertext; the wire layout carries it
	// between the IV and the ciphertext.
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	packed := make([]byte, 0, ivSize+tagSize+len(ciphertext))
	packed = append(packed, iv...)
	packed = append(packed, tag...)
	packed = append(packed, ciphertext...)
	return base64.StdEncoding.EncodeToString(packed), nil
}

// Decrypt opens a packed base64 payload. It fails closed on any tampering:
// a tag mismatch yields an error and no plaintext.
func Decrypt(key []byte, packedB64 string) ([]byte, error) {
	packed, err := base64.StdEncoding.DecodeString(packedB64)
	if err != nil {
		return nil, fmt.Errorf("invalid payload encoding: %w", err)
	}
	if len(packed) < ivSize+tagSize {
		return nil, errors.New("payload too short")
	}

	iv := packed[:ivSize]
	tag := packed[ivSize : ivSize+tagSize]
	ciphertext := packed[ivSize+tagSize:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
