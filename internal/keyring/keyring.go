// Package keyring maintains a short rolling window of X25519 key pairs. The
// number of live public keys backs the dashboard's "quantum keys" figure and
// is published at GET /keys.
package keyring

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/curve25519"
)

// Algorithm names the key agreement scheme.
const Algorithm = "X25519"

const (
	DefaultRetain   = 4
	DefaultInterval = 15 * time.Minute
)

// PublicKey is a published key.
type PublicKey struct {
	ID        string    `json:"id"`
	PublicKey string    `json:"public_key"`
	RotatedAt time.Time `json:"rotated_at"`
}

type keyPair struct {
	pub     PublicKey
	private []byte
}

// RotateRecordFunc is an optional callback invoked after each rotation.
type RotateRecordFunc func()

// Ring holds the newest retain key pairs, newest first.
type Ring struct {
	mu       sync.RWMutex
	keys     []keyPair
	retain   int
	rand     io.Reader
	now      func() time.Time
	onRotate RotateRecordFunc
	logger   *zap.Logger
}

// New creates a Ring and generates its first key.
func New(retain int, logger *zap.Logger) (*Ring, error) {
	if retain <= 0 {
		retain = DefaultRetain
	}
	r := &Ring{
		retain: retain,
		rand:   rand.Reader,
		now:    time.Now,
		logger: logger,
	}
	if err := r.Rotate(); err != nil {
		return nil, err
	}
	return r, nil
}

// SetRotateRecord configures the rotation callback.
func (r *Ring) SetRotateRecord(fn RotateRecordFunc) {
	r.onRotate = fn
}

// Rotate generates a new key pair and drops the oldest beyond the retain
// limit.
func (r *Ring) Rotate() error {
	scalar := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(r.rand, scalar); err != nil {
		return fmt.Errorf("generate X25519 scalar: %w", err)
	}
	pub, err := curve25519.X25519(scalar, curve25519.Basepoint)
	if err != nil {
		return fmt.Errorf("derive X25519 public key: %w", err)
	}

	kp := keyPair{
		pub: PublicKey{
			ID:        uuid.NewString(),
			PublicKey: base64.StdEncoding.EncodeToString(pub),
			RotatedAt: r.now().UTC(),
		},
		private: scalar,
	}

	r.mu.Lock()
	r.keys = append([]keyPair{kp}, r.keys...)
	for _, old := range r.keys[min(len(r.keys), r.retain):] {
		clear(old.private)
	}
	r.keys = r.keys[:min(len(r.keys), r.retain)]
	r.mu.Unlock()

	r.logger.Debug("key rotated", zap.String("id", kp.pub.ID))
	if r.onRotate != nil {
		r.onRotate()
	}
	return nil
}

// PublicKeys returns the live public keys, newest first.
func (r *Ring) PublicKeys() []PublicKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PublicKey, len(r.keys))
	for i, k := range r.keys {
		out[i] = k.pub
	}
	return out
}

// Len returns the number of live keys.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// SharedSecret computes the X25519 shared secret between the key identified
// by id and a peer's base64-encoded public key.
func (r *Ring) SharedSecret(id, peerPublic string) ([]byte, error) {
	peer, err := base64.StdEncoding.DecodeString(peerPublic)
	if err != nil {
		return nil, fmt.Errorf("decode peer key: %w", err)
	}

	r.mu.RLock()
	i := slices.IndexFunc(r.keys, func(k keyPair) bool { return k.pub.ID == id })
	var scalar []byte
	if i >= 0 {
		scalar = slices.Clone(r.keys[i].private)
	}
	r.mu.RUnlock()
	if scalar == nil {
		return nil, fmt.Errorf("key %q not found", id)
	}

	secret, err := curve25519.X25519(scalar, peer)
	if err != nil {
		return nil, fmt.Errorf("X25519: %w", err)
	}
	return secret, nil
}

// Start rotates keys every interval until ctx is cancelled.
func (r *Ring) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := r.Rotate(); err != nil {
					r.logger.Error("key rotation failed", zap.Error(err))
				}
			}
		}
	}()
}
