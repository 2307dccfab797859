// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/seam-foundation/seam/lib/codec"
)

// Operation records are stored as a self-verifying envelope:
//
//	fingerprint[16] || tag[1] || payload
//
// The underlying body is deterministic CBOR of operationRecordV1.
// tag identifies the payload compression; compressed payloads carry a
// uvarint of the body length ahead of the compressed bytes. The
// fingerprint is the first 16 bytes of a keyed BLAKE3 hash over
// tag || payload, so corruption is detected before any decompression
// or decoding runs.

// compressionTag identifies the payload compression. Protocol
// constants; changing them breaks stored records.
type compressionTag uint8

const (
	compressNone compressionTag = 0
	compressLZ4  compressionTag = 1
	compressZstd compressionTag = 2
)

const (
	recordSchemaVersion = 1
	fingerprintSize     = 16

	// Bodies below this size are stored uncompressed; the CPU spent
	// compressing a hundred-byte record buys nothing.
	compressThreshold = 256

	// maxRecordBody bounds the declared body size of a compressed
	// payload so a corrupt header cannot trigger a giant allocation.
	maxRecordBody = 16 << 20
)

// envelopeDomainKey is the BLAKE3 keyed-hash key for operation record
// fingerprints: the ASCII domain name zero-padded to 32 bytes, so the
// key is inspectable in hex dumps. Fixed constant; changing it
// invalidates every stored record.
var envelopeDomainKey = [32]byte{
	's', 'e', 'a', 'm', '/', 'o', 'p', 'e', 'r', 'a', 't', 'i', 'o', 'n', '/', 'v', '1',
}

// operationRecordV1 is the stored shape of an Operation. Fields are
// keyed by integer for compact deterministic CBOR; field 0 is the
// schema version so future shapes can be told apart before decoding.
// Times are UnixMilli.
type operationRecordV1 struct {
	SchemaVersion       int            `cbor:"0,keyasint"`
	ID                  string         `cbor:"1,keyasint"`
	UserID              string         `cbor:"2,keyasint"`
	Type                string         `cbor:"3,keyasint"`
	Data                map[string]any `cbor:"4,keyasint,omitempty"`
	Attempt             int            `cbor:"5,keyasint"`
	MaxAttempts         int            `cbor:"6,keyasint"`
	CreatedAt           int64          `cbor:"7,keyasint"`
	ScheduledFor        int64          `cbor:"8,keyasint"`
	LastError           string         `cbor:"9,keyasint,omitempty"`
	Status              string         `cbor:"10,keyasint"`
	Priority            int            `cbor:"11,keyasint"`
	ProcessingStartedAt int64          `cbor:"12,keyasint,omitempty"`
}

// recordVersionProbe decodes just the schema version so unknown
// versions fail with a version error rather than a shape mismatch.
type recordVersionProbe struct {
	SchemaVersion int `cbor:"0,keyasint"`
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("reconcile: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("reconcile: zstd decoder initialization failed: " + err.Error())
	}
}

// encodeOperation serializes an operation into its stored envelope.
func encodeOperation(op *Operation) ([]byte, error) {
	rec := operationRecordV1{
		SchemaVersion: recordSchemaVersion,
		ID:            op.ID,
		UserID:        op.UserID,
		Type:          string(op.Type),
		Data:          op.Data,
		Attempt:       op.Attempt,
		MaxAttempts:   op.MaxAttempts,
		CreatedAt:     op.CreatedAt.UnixMilli(),
		ScheduledFor:  op.ScheduledFor.UnixMilli(),
		LastError:     op.LastError,
		Status:        string(op.Status),
		Priority:      op.Priority,
	}
	if !op.ProcessingStartedAt.IsZero() {
		rec.ProcessingStartedAt = op.ProcessingStartedAt.UnixMilli()
	}

	body, err := codec.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding operation %s: %w", op.ID, err)
	}

	tag, payload := compressBody(body)

	envelope := make([]byte, fingerprintSize+1+len(payload))
	envelope[fingerprintSize] = byte(tag)
	copy(envelope[fingerprintSize+1:], payload)

	fp := fingerprint(envelope[fingerprintSize:])
	copy(envelope, fp[:])
	return envelope, nil
}

// decodeOperation parses and verifies a stored envelope.
func decodeOperation(b []byte) (*Operation, error) {
	if len(b) < fingerprintSize+1 {
		return nil, fmt.Errorf("operation record too short (%d bytes)", len(b))
	}
	fp := fingerprint(b[fingerprintSize:])
	if !bytes.Equal(fp[:], b[:fingerprintSize]) {
		return nil, fmt.Errorf("operation record fingerprint mismatch")
	}

	tag := compressionTag(b[fingerprintSize])
	body, err := decompressBody(tag, b[fingerprintSize+1:])
	if err != nil {
		return nil, err
	}

	var probe recordVersionProbe
	if err := codec.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("decoding operation record: %w", err)
	}
	if probe.SchemaVersion != recordSchemaVersion {
		return nil, fmt.Errorf("unsupported operation record schema version %d", probe.SchemaVersion)
	}

	var rec operationRecordV1
	if err := codec.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decoding operation record: %w", err)
	}

	op := &Operation{
		ID:           rec.ID,
		UserID:       rec.UserID,
		Type:         OpType(rec.Type),
		Data:         rec.Data,
		Attempt:      rec.Attempt,
		MaxAttempts:  rec.MaxAttempts,
		CreatedAt:    time.UnixMilli(rec.CreatedAt),
		ScheduledFor: time.UnixMilli(rec.ScheduledFor),
		LastError:    rec.LastError,
		Status:       Status(rec.Status),
		Priority:     rec.Priority,
	}
	if rec.ProcessingStartedAt != 0 {
		op.ProcessingStartedAt = time.UnixMilli(rec.ProcessingStartedAt)
	}
	return op, nil
}

// fingerprint computes the keyed BLAKE3 fingerprint of tag || payload.
func fingerprint(tagAndPayload []byte) [fingerprintSize]byte {
	hasher, err := blake3.NewKeyed(envelopeDomainKey[:])
	if err != nil {
		panic("reconcile: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(tagAndPayload)
	var fp [fingerprintSize]byte
	copy(fp[:], hasher.Sum(nil))
	return fp
}

// compressBody picks a compression for the CBOR body: zstd when it
// earns a solid ratio, lz4 when it at least shrinks the body, plain
// bytes otherwise. Small bodies skip compression entirely.
func compressBody(body []byte) (compressionTag, []byte) {
	if len(body) < compressThreshold {
		return compressNone, body
	}

	prefix := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(prefix, uint64(len(body)))
	prefix = prefix[:n]

	compressed := zstdEncoder.EncodeAll(body, nil)
	if len(prefix)+len(compressed) < len(body)*5/6 {
		return compressZstd, append(prefix, compressed...)
	}

	bound := lz4.CompressBlockBound(len(body))
	destination := make([]byte, bound)
	written, err := lz4.CompressBlock(body, destination, nil)
	if err == nil && written > 0 && len(prefix)+written < len(body) {
		return compressLZ4, append(prefix, destination[:written]...)
	}

	return compressNone, body
}

// decompressBody reverses compressBody for the given tag.
func decompressBody(tag compressionTag, payload []byte) ([]byte, error) {
	if tag == compressNone {
		return payload, nil
	}

	size, n := binary.Uvarint(payload)
	if n <= 0 || size > maxRecordBody {
		return nil, fmt.Errorf("operation record: invalid compressed payload header")
	}
	compressed := payload[n:]

	switch tag {
	case compressLZ4:
		body := make([]byte, size)
		read, err := lz4.UncompressBlock(compressed, body)
		if err != nil {
			return nil, fmt.Errorf("operation record: lz4 decompress: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("operation record: lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return body, nil

	case compressZstd:
		body, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("operation record: zstd decompress: %w", err)
		}
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("operation record: zstd decompress: got %d bytes, expected %d", len(body), size)
		}
		return body, nil

	default:
		return nil, fmt.Errorf("operation record: unknown compression tag %d", tag)
	}
}
