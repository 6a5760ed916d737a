package raft

import (
	"bytes"
	"math/rand"
	"time"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// randomTimeout returns a channel that fires after a duration uniformly
// distributed in [minVal, 2*minVal), or immediately when minVal is 0.
func randomTimeout(minVal time.Duration) <-chan time.Time {
	if minVal == 0 {
		return time.After(0)
	}
	extra := time.Duration(rand.Int63()) % minVal
	return time.After(minVal + extra)
}

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// asyncNotifyCh sends to ch without blocking if nobody is receiving.
func asyncNotifyCh(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

var msgpackHandle = &codec.MsgpackHandle{}

// encodeMsgPack serializes v with MsgPack, the wire format the teacher uses
// for Configuration/Membership log entries (configuration.go).
func encodeMsgPack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeMsgPack deserializes buf into v.
func decodeMsgPack(buf []byte, v interface{}) error {
	dec := codec.NewDecoder(bytes.NewReader(buf), msgpackHandle)
	return dec.Decode(v)
}
