package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIDGenerator_SameTickIsUnique(t *testing.T) {
	req := require.New(t)
	var g IDGenerator
	at := time.Unix(1700000000, 0)

	a := g.Next(at)
	b := g.Next(at)
	req.NotEqual(a, b)
	req.Less(a, b)
}

func TestIDGenerator_ClockStepBack(t *testing.T) {
	req := require.New(t)
	var g IDGenerator
	at := time.Unix(1700000000, 0)

	a := g.Next(at)
	b := g.Next(at.Add(-time.Hour))
	c := g.Next(at.Add(time.Nanosecond))
	req.Less(a, b)
	req.Less(b, c)
}

func TestIDGenerator_SequenceOverflowAdvancesTick(t *testing.T) {
	req := require.New(t)
	var g IDGenerator
	at := time.Unix(1700000000, 0)

	prev := g.Next(at)
	for i := 0; i < maxSeq+2; i++ {
		id := g.Next(at)
		if id <= prev {
			t.Fatalf("id %s not after %s", id, prev)
		}
		prev = id
	}
	req.Len(prev, 25)
}
