package cache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	hex "github.com/tmthrgd/go-hex"
)

// Digest returns a fixed-width, content-addressed fragment for a serialized key.
// Two independent xxhash passes (plain and seeded by length) give a 128-bit
// digest so distinct parameter sets do not collide in practice.
func Digest(serialized string) string {
	var buf [16]byte

	binary.BigEndian.PutUint64(buf[:8], xxhash.Sum64String(serialized))

	d := xxhash.New()
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], uint64(len(serialized)))
	_, _ = d.Write(seed[:])
	_, _ = d.WriteString(serialized)
	binary.BigEndian.PutUint64(buf[8:], d.Sum64())

	return hex.EncodeToString(buf[:])
}

// DigestKey serializes method and args with the serializer and digests the result.
func DigestKey(serializer KeySerializer, method string, args ...any) string {
	return Digest(serializer.SerializeKey(method, args...))
}
