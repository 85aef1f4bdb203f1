package main

import (
	"encoding/binary"
	"encoding/hex"
)

// prePowWords splits the pre-PoW hash into the four little-endian words
// legacy firmware expects.
func prePowWords(hash []byte) [4]uint64 {
	var words [4]uint64
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(hash[i*8:])
	}
	return words
}

func encodeBigJob(hash []byte, timestamp int64) string {
	buf := make([]byte, 0, 40)
	buf = append(buf, hash[:32]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(timestamp))
	return hex.EncodeToString(buf)
}

func encodeBigJobBE(hash []byte, timestamp int64) string {
	words := prePowWords(hash)
	buf := make([]byte, 0, 40)
	for _, w := range words {
		buf = binary.BigEndian.AppendUint64(buf, w)
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(timestamp))
	return hex.EncodeToString(buf)
}

func encodeJobParams(job *Job, enc jobEncoding) []any {
	hash := job.PrePowHash.ByteSlice()
	switch enc {
	case jobEncodingHex:
		return []any{job.IDString(), encodeBigJob(hash, job.Timestamp)}
	case jobEncodingHexBigEndian:
		return []any{job.IDString(), encodeBigJobBE(hash, job.Timestamp)}
	default:
		words := prePowWords(hash)
		return []any{job.IDString(), words[:], job.Timestamp}
	}
}
