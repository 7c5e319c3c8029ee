package auth

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/oauth2"
)

// Storage is a secure means to store OAuth2 credentials.
type Storage interface {
	// Load returns the current token. If there is none, the result is nil
	// with a nil error, and the caller should acquire a new token.
	Load(ctx context.Context) (*oauth2.Token, error)
	// Store sets a new token. If tok is nil, the storage is cleared.
	Store(ctx context.Context, tok *oauth2.Token) error
}

// file is the interface used by a FileStorage.
type file interface {
	io.ReaderAt
	io.WriterAt
	Truncate(int64) error
}

// FileStorage is an encrypted file storage for OAuth2 credentials.
//
// The file holds a 12-byte nonce followed by the sealed JSON encoding of the
// token. The first eight bytes of the nonce are a little-endian counter
// incremented on every store; the rest are random.
type FileStorage struct {
	mu   sync.Mutex
	f    file
	enc  cipher.AEAD
	rand io.Reader
}

// KeySize is the size of the key used to encrypt the token file.
const KeySize = chacha20poly1305.KeySize

const (
	nonceSize = chacha20poly1305.NonceSize
	totalOH   = chacha20poly1305.NonceSize + chacha20poly1305.Overhead
	// maxFile is the largest token file we are willing to read.
	maxFile = 64 << 10
)

// NewFileAt creates a FileStorage at path p.
func NewFileAt(p string, key [KeySize]byte) (*FileStorage, error) {
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	enc, err := chacha20poly1305.New(key[:])
	if err != nil {
		panic(err)
	}
	return &FileStorage{f: f, enc: enc, rand: rand.Reader}, nil
}

// Load decrypts the token. If there is no token, the result is nil with a
// nil error.
func (f *FileStorage) Load(ctx context.Context) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, p, err := f.parts()
	if err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return nil, nil
	}
	var tok oauth2.Token
	if err := json.Unmarshal(p, &tok); err != nil {
		return nil, fmt.Errorf("couldn't decode stored token: %w", err)
	}
	return &tok, nil
}

// Store sets a new token. If the token file contains data that is not a
// valid token encrypted with the key passed to NewFileAt, Store returns an
// error.
func (f *FileStorage) Store(ctx context.Context, tok *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tok == nil {
		if err := f.f.Truncate(0); err != nil {
			return fmt.Errorf("couldn't clear token: %w", err)
		}
		return nil
	}
	p, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("couldn't encode token: %w", err)
	}
	nonce, _, err := f.parts()
	if err != nil {
		return err
	}
	b := make([]byte, nonceSize, totalOH+len(p))
	if len(nonce) == 0 {
		// File is empty. We'll be initializing it.
		b = initialNonce(p, f.rand)
	} else {
		copy(b, nonce)
	}
	v := binary.LittleEndian.Uint64(b)
	v++
	binary.LittleEndian.PutUint64(b, v)
	r := f.enc.Seal(b, b, p, nil)
	if _, err := f.f.WriteAt(r, 0); err != nil {
		return fmt.Errorf("couldn't save token: %w", err)
	}
	if err := f.f.Truncate(int64(len(r))); err != nil {
		return fmt.Errorf("couldn't trim token file: %w", err)
	}
	return nil
}

func (f *FileStorage) parts() (nonce, ptxt []byte, err error) {
	b, err := io.ReadAll(io.NewSectionReader(f.f, 0, maxFile))
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't read token file contents: %w", err)
	}
	if len(b) == 0 {
		// File is empty. Load won't care; Store will set it up.
		return nil, nil, nil
	}
	if len(b) < totalOH {
		return nil, nil, errors.New("stored data is too short")
	}
	nonce = b[:nonceSize]
	text := b[nonceSize:]
	ptxt, err = f.enc.Open(text[:0], nonce, text, nil)
	if err != nil {
		return nil, nil, err
	}
	return nonce, ptxt, nil
}

func initialNonce(p []byte, rand io.Reader) []byte {
	b := make([]byte, nonceSize, totalOH+len(p))
	pad := b[8:nonceSize]
	_, err := io.ReadFull(rand, pad)
	if err != nil {
		panic(fmt.Errorf("couldn't read nonce padding: %w", err))
	}
	return b
}
