package phoneauth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const handleRecordVersion1 = 1

var (
	errHandleNotFound = errors.New("verification handle not found")
	errHandleExpired  = errors.New("verification handle expired")
	errHandleBackend  = errors.New("verification handle backend unavailable")
)

// verificationRecord is the provider-side state kept per sent code: which
// phone it belongs to, the provider's confirmation reference, and the
// rejected-attempt count.
type verificationRecord struct {
	Phone       string
	ProviderRef string
	ExpiresAt   int64
	Attempts    uint16
}

// verificationHandleStore keeps verification records in Redis, plus a
// current-handle pointer per phone number. The pointer is what enforces
// supersession: a fresh send repoints it, and confirms against any older
// handle are rejected without a provider round-trip.
type verificationHandleStore struct {
	redis  *redis.Client
	prefix string
}

func newVerificationHandleStore(redisClient *redis.Client, prefix string) *verificationHandleStore {
	return &verificationHandleStore{redis: redisClient, prefix: prefix}
}

func (s *verificationHandleStore) handleKey(handleID string) string {
	return s.prefix + ":h:" + handleID
}

func (s *verificationHandleStore) currentKey(phone string) string {
	return s.prefix + ":cur:" + phone
}

// Save stores the record and repoints the phone's current handle at it,
// invalidating any previous handle for confirmation purposes.
func (s *verificationHandleStore) Save(
	ctx context.Context,
	handleID string,
	record *verificationRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeVerificationRecord(record)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.handleKey(handleID), encoded, ttl)
		pipe.Set(ctx, s.currentKey(record.Phone), handleID, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errHandleBackend, err)
	}
	return nil
}

func (s *verificationHandleStore) Get(ctx context.Context, handleID string) (*verificationRecord, error) {
	data, err := s.redis.Get(ctx, s.handleKey(handleID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errHandleNotFound
		}
		return nil, fmt.Errorf("%w: %v", errHandleBackend, err)
	}

	record, err := decodeVerificationRecord(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.handleKey(handleID)).Result()
		return nil, errHandleExpired
	}
	return record, nil
}

// Current returns the handle id the phone's pointer designates, or "" when
// none exists.
func (s *verificationHandleStore) Current(ctx context.Context, phone string) (string, error) {
	id, err := s.redis.Get(ctx, s.currentKey(phone)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", errHandleBackend, err)
	}
	return id, nil
}

// Consume removes the handle after a successful confirmation, and clears the
// phone's pointer only if it still designates this handle.
func (s *verificationHandleStore) Consume(ctx context.Context, handleID, phone string) error {
	curKey := s.currentKey(phone)

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, curKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.handleKey(handleID))
			if cur == handleID {
				pipe.Del(ctx, curKey)
			}
			return nil
		})
		return err
	}, curKey)
	if err != nil {
		return fmt.Errorf("%w: %v", errHandleBackend, err)
	}
	return nil
}

// InvalidatePhone drops the phone's pointer and, if present, its handle.
// Used when the user abandons an OTP attempt.
func (s *verificationHandleStore) InvalidatePhone(ctx context.Context, phone string) error {
	id, err := s.Current(ctx, phone)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if id != "" {
			pipe.Del(ctx, s.handleKey(id))
		}
		pipe.Del(ctx, s.currentKey(phone))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errHandleBackend, err)
	}
	return nil
}

// RecordFailure increments the rejected-attempt counter, invalidating the
// handle once maxAttempts is reached. Returns whether the cap was hit.
func (s *verificationHandleStore) RecordFailure(
	ctx context.Context,
	handleID string,
	maxAttempts int,
) (bool, error) {
	const maxRetries = 4
	key := s.handleKey(handleID)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeVerificationRecord(data)
			if err != nil {
				return err
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errHandleExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.Del(ctx, s.currentKey(record.Phone))
					return nil
				})
				return err
			}

			updated, err := encodeVerificationRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, errHandleNotFound
			}
			if errors.Is(err, errHandleExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", errHandleBackend, err)
		}
		return exceeded, nil
	}

	return false, errHandleNotFound
}

func encodeVerificationRecord(record *verificationRecord) ([]byte, error) {
	if len(record.Phone) > 65535 || len(record.ProviderRef) > 65535 {
		return nil, errors.New("verification record field length exceeded")
	}

	var buf bytes.Buffer
	buf.WriteByte(handleRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Phone))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Phone)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.ProviderRef))); err != nil {
		return nil, err
	}
	buf.WriteString(record.ProviderRef)

	return buf.Bytes(), nil
}

func decodeVerificationRecord(data []byte) (*verificationRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != handleRecordVersion1 {
		return nil, errors.New("invalid verification record version")
	}

	record := &verificationRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var phoneLen uint16
	if err := binary.Read(reader, binary.BigEndian, &phoneLen); err != nil {
		return nil, err
	}
	phone := make([]byte, phoneLen)
	if _, err := io.ReadFull(reader, phone); err != nil {
		return nil, err
	}
	record.Phone = string(phone)

	var refLen uint16
	if err := binary.Read(reader, binary.BigEndian, &refLen); err != nil {
		return nil, err
	}
	ref := make([]byte, refLen)
	if _, err := io.ReadFull(reader, ref); err != nil {
		return nil, err
	}
	record.ProviderRef = string(ref)

	return record, nil
}
