package main

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/kaspanet/kaspad/util/difficulty"
)

func sequentialHash() []byte {
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}
	return hash
}

func TestPrePowWordsLittleEndian(t *testing.T) {
	words := prePowWords(sequentialHash())
	if words[0] != 0x0706050403020100 {
		t.Fatalf("w0 got %#x want %#x", words[0], uint64(0x0706050403020100))
	}
	if words[3] != 0x1f1e1d1c1b1a1918 {
		t.Fatalf("w3 got %#x want %#x", words[3], uint64(0x1f1e1d1c1b1a1918))
	}
}

func TestEncodeBigJob(t *testing.T) {
	hash := sequentialHash()
	ts := int64(0x0102030405060708)

	got := encodeBigJob(hash, ts)
	want := hex.EncodeToString(hash) + "0807060504030201"
	if got != want {
		t.Fatalf("little-endian got %s want %s", got, want)
	}
	if len(got) != 80 {
		t.Fatalf("length got %d want 80", len(got))
	}

	gotBE := encodeBigJobBE(hash, ts)
	var b strings.Builder
	for _, w := range prePowWords(hash) {
		b.WriteString(hex.EncodeToString(binary.BigEndian.AppendUint64(nil, w)))
	}
	b.WriteString("0102030405060708")
	if gotBE != b.String() {
		t.Fatalf("big-endian got %s want %s", gotBE, b.String())
	}
	// Each word is byte-reversed relative to the raw hash.
	if gotBE[:16] != "0706050403020100" {
		t.Fatalf("first word got %s", gotBE[:16])
	}
}

func TestEncodeJobParams(t *testing.T) {
	job := testJob(t, 7, 1, bitsEveryHash)

	legacy := encodeJobParams(job, jobEncodingLegacy)
	if len(legacy) != 3 || legacy[0] != "7" {
		t.Fatalf("legacy params got %v", legacy)
	}
	words, ok := legacy[1].([]uint64)
	if !ok || len(words) != 4 {
		t.Fatalf("legacy words got %T %v", legacy[1], legacy[1])
	}
	if legacy[2] != job.Timestamp {
		t.Fatalf("legacy timestamp got %v want %d", legacy[2], job.Timestamp)
	}

	for _, enc := range []jobEncoding{jobEncodingHex, jobEncodingHexBigEndian} {
		params := encodeJobParams(job, enc)
		if len(params) != 2 || params[0] != "7" {
			t.Fatalf("encoding %v params got %v", enc, params)
		}
		s, ok := params[1].(string)
		if !ok || len(s) != 80 {
			t.Fatalf("encoding %v payload got %v", enc, params[1])
		}
	}
}

func TestBuildJob(t *testing.T) {
	job := testJob(t, 3, 5, bitsEveryHash)
	if job.ID != 3 || job.IDString() != "3" {
		t.Fatalf("id got %d/%s", job.ID, job.IDString())
	}
	if job.Timestamp != 1700000000005 {
		t.Fatalf("timestamp got %d", job.Timestamp)
	}
	if job.DAAScore != 1005 || job.BlueScore != 905 {
		t.Fatalf("scores got %d/%d", job.DAAScore, job.BlueScore)
	}
	if job.Target.Cmp(difficulty.CompactToBig(bitsEveryHash)) != 0 {
		t.Fatalf("target mismatch")
	}

	// The pre-PoW hash ignores timestamp and nonce.
	tpl := testTemplate(5, bitsEveryHash)
	tpl.Header.Timestamp += 1000
	tpl.Header.Nonce = 99
	other, err := buildJob(4, tpl)
	if err != nil {
		t.Fatalf("buildJob: %v", err)
	}
	if !job.PrePowHash.Equal(other.PrePowHash) {
		t.Fatalf("pre-pow hash changed with timestamp/nonce")
	}

	if different := testJob(t, 5, 6, bitsEveryHash); job.PrePowHash.Equal(different.PrePowHash) {
		t.Fatalf("different merkle roots produced the same pre-pow hash")
	}
}

func TestBuildJobRejectsEmptyTemplate(t *testing.T) {
	if _, err := buildJob(1, nil); err == nil {
		t.Fatalf("expected error for nil template")
	}
	tpl := testTemplate(1, bitsEveryHash)
	tpl.Header.HashMerkleRoot = "zz"
	if _, err := buildJob(1, tpl); err == nil {
		t.Fatalf("expected error for malformed hash")
	}
}
