// Package session stores the wizard and password reset sessions in a key-value backend.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/sauvini/onboarding/core/recovery"
	"github.com/sauvini/onboarding/core/registration"
)

// ErrNoKey is returned by a KV when the key does not exist (or has expired).
var ErrNoKey = errors.New("key not found")

var (
	registrationKey = "reg_session:%s"
	resetKey        = "reset_session:%s"
)

// KV is the backend of a Store. Values expire after ttl.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Replace sets the value only if the key exists, and reports whether it did.
	Replace(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

type Store struct {
	kv    KV
	codec *Codec
	ttl   time.Duration
}

var (
	_ registration.Repository = (*Store)(nil)
	_ recovery.Repository     = (*Store)(nil)
)

// NewStore returns a Store keeping every session for ttl since its last update.
func NewStore(kv KV, codec *Codec, ttl time.Duration) *Store {
	return &Store{kv: kv, codec: codec, ttl: ttl}
}

func (s *Store) CreateSession(ctx context.Context, sess registration.Session) error {
	return s.put(ctx, fmt.Sprintf(registrationKey, sess.ID), sess, false)
}

func (s *Store) GetSession(ctx context.Context, id string) (registration.Session, error) {
	var sess registration.Session
	err := s.get(ctx, fmt.Sprintf(registrationKey, id), &sess)
	if err == ErrNoKey {
		return sess, registration.ErrSessionNotFound
	}
	return sess, err
}

func (s *Store) UpdateSession(ctx context.Context, sess registration.Session) error {
	err := s.put(ctx, fmt.Sprintf(registrationKey, sess.ID), sess, true)
	if err == ErrNoKey {
		return registration.ErrSessionNotFound
	}
	return err
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return errors.Wrap(s.kv.Del(ctx, fmt.Sprintf(registrationKey, id)), "deleting session")
}

func (s *Store) CreateResetSession(ctx context.Context, sess recovery.Session) error {
	return s.put(ctx, fmt.Sprintf(resetKey, sess.ID), sess, false)
}

func (s *Store) GetResetSession(ctx context.Context, id string) (recovery.Session, error) {
	var sess recovery.Session
	err := s.get(ctx, fmt.Sprintf(resetKey, id), &sess)
	if err == ErrNoKey {
		return sess, recovery.ErrNotFound
	}
	return sess, err
}

func (s *Store) UpdateResetSession(ctx context.Context, sess recovery.Session) error {
	err := s.put(ctx, fmt.Sprintf(resetKey, sess.ID), sess, true)
	if err == ErrNoKey {
		return recovery.ErrNotFound
	}
	return err
}

func (s *Store) DeleteResetSession(ctx context.Context, id string) error {
	return errors.Wrap(s.kv.Del(ctx, fmt.Sprintf(resetKey, id)), "deleting reset session")
}

func (s *Store) get(ctx context.Context, key string, v interface{}) error {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if err == ErrNoKey {
			return err
		}
		return errors.Wrapf(err, "getting %s", key)
	}
	return errors.Wrapf(s.codec.Decode(data, v), "decoding %s", key)
}

// put returns ErrNoKey when replacing a missing key.
func (s *Store) put(ctx context.Context, key string, v interface{}, replace bool) error {
	data, err := s.codec.Encode(v)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	if !replace {
		return errors.Wrapf(s.kv.Set(ctx, key, data, s.ttl), "setting %s", key)
	}
	ok, err := s.kv.Replace(ctx, key, data, s.ttl)
	if err != nil {
		return errors.Wrapf(err, "replacing %s", key)
	}
	if !ok {
		return ErrNoKey
	}
	return nil
}
