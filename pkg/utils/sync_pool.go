// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sync"

	"github.com/minio/crc64nvme"
	"github.com/minio/sha256-simd"
)

var (
	bufferPool = sync.Pool{
		New: func() any {
			return new(bytes.Buffer)
		},
	}
	sha256Pool = sync.Pool{
		New: func() any {
			return sha256.New()
		},
	}
	crc64nvmePool = sync.Pool{
		New: func() any {
			return crc64nvme.New()
		},
	}
)

func SyncPoolGetBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func SyncPoolPutBuffer(buffer *bytes.Buffer) {
	buffer.Reset()
	bufferPool.Put(buffer)
}

func Sha256PoolGetHasher() hash.Hash {
	return sha256Pool.Get().(hash.Hash)
}

func Sha256PoolPutHasher(h hash.Hash) {
	h.Reset()
	sha256Pool.Put(h)
}

func Crc64nvmePoolGetHasher() hash.Hash64 {
	return crc64nvmePool.Get().(hash.Hash64)
}

func Crc64nvmePoolPutHasher(h hash.Hash64) {
	h.Reset()
	crc64nvmePool.Put(h)
}

// Sha256Hex returns the hex encoded SHA-256 of data.
func Sha256Hex(data []byte) string {
	h := Sha256PoolGetHasher()
	defer Sha256PoolPutHasher(h)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Crc64nvmeBase64 returns the base64 encoded big-endian CRC64/NVME of data,
// the representation S3 uses for x-amz-checksum-crc64nvme.
func Crc64nvmeBase64(data []byte) string {
	h := Crc64nvmePoolGetHasher()
	defer Crc64nvmePoolPutHasher(h)
	h.Write(data)
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], h.Sum64())
	return base64.StdEncoding.EncodeToString(sum[:])
}
