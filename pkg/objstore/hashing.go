// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package objstore

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"hash"
	"io"

	"github.com/internaltools/credshare/pkg/utils"
)

var errSizeLimit = errors.New("size limit exceeded")

// hashingReader counts and checksums what the backend reads, and fails the
// read once more than limit bytes have passed through.
type hashingReader struct {
	r        io.Reader
	limit    int64
	n        int64
	sha      hash.Hash
	crc      hash.Hash64
	exceeded bool
}

func newHashingReader(r io.Reader, limit int64) *hashingReader {
	return &hashingReader{
		r:     r,
		limit: limit,
		sha:   utils.Sha256PoolGetHasher(),
		crc:   utils.Crc64nvmePoolGetHasher(),
	}
}

func (h *hashingReader) Read(p []byte) (int, error) {
	if h.exceeded {
		return 0, errSizeLimit
	}
	n, err := h.r.Read(p)
	if n > 0 {
		h.n += int64(n)
		if h.limit > 0 && h.n > h.limit {
			h.exceeded = true
			return 0, errSizeLimit
		}
		h.sha.Write(p[:n])
		h.crc.Write(p[:n])
	}
	return n, err
}

// ETag returns the hex SHA-256 of everything read.
func (h *hashingReader) ETag() string {
	return hex.EncodeToString(h.sha.Sum(nil))
}

// Checksum returns the base64 big-endian CRC64/NVME of everything read.
func (h *hashingReader) Checksum() string {
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], h.crc.Sum64())
	return base64.StdEncoding.EncodeToString(sum[:])
}

// release returns the hashers to their pools. The reader is unusable after.
func (h *hashingReader) release() {
	utils.Sha256PoolPutHasher(h.sha)
	utils.Crc64nvmePoolPutHasher(h.crc)
	h.sha, h.crc = nil, nil
}
