package main

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/kaspanet/kaspad/app/appmessage"
	"github.com/kaspanet/kaspad/domain/consensus/model/externalapi"
	"github.com/kaspanet/kaspad/domain/consensus/utils/consensushashing"
	"github.com/kaspanet/kaspad/util/difficulty"
)

// Job is one block template handed to miners. Jobs are shared read-only
// between instances once built.
type Job struct {
	ID         uint64
	Block      *externalapi.DomainBlock
	PrePowHash *externalapi.DomainHash
	Timestamp  int64
	Bits       uint32
	DAAScore   uint64
	BlueScore  uint64
	Target     *big.Int
	CreatedAt  time.Time
}

func (j *Job) IDString() string {
	return strconv.FormatUint(j.ID, 10)
}

// buildJob converts a node template into a Job. The pre-PoW hash is the
// header hash with timestamp and nonce zeroed, which is what miners hash.
func buildJob(id uint64, tpl *appmessage.RPCBlock) (*Job, error) {
	if tpl == nil || tpl.Header == nil {
		return nil, fmt.Errorf("empty block template")
	}
	block, err := appmessage.RPCBlockToDomainBlock(tpl)
	if err != nil {
		return nil, fmt.Errorf("convert template: %w", err)
	}
	header := block.Header.ToMutable()
	header.SetTimeInMilliseconds(0)
	header.SetNonce(0)
	prePow := consensushashing.HeaderHash(header)

	return &Job{
		ID:         id,
		Block:      block,
		PrePowHash: prePow,
		Timestamp:  block.Header.TimeInMilliseconds(),
		Bits:       block.Header.Bits(),
		DAAScore:   block.Header.DAAScore(),
		BlueScore:  block.Header.BlueScore(),
		Target:     difficulty.CompactToBig(block.Header.Bits()),
		CreatedAt:  time.Now(),
	}, nil
}
