package paxosloop

import (
	"testing"
	"time"

	"gopkg.in/check.v1"

	"github.com/bdeggleston/paxoscommit/internal/commitctx"
	"github.com/bdeggleston/paxoscommit/internal/paxoscore"
	"github.com/bdeggleston/paxoscommit/internal/smfac"
)

func Test(t *testing.T) { check.TestingT(t) }

type LoopSuite struct{}

var _ = check.Suite(&LoopSuite{})

func (s *LoopSuite) TestSingleValueCommitsThroughQuorum(c *check.C) {
	ctx := commitctx.New()
	reg := smfac.New()
	acceptors := []Acceptor{NewMemoryAcceptor(), NewMemoryAcceptor(), NewMemoryAcceptor()}
	loop := New(ctx, reg, acceptors)
	loop.Start()
	defer loop.Stop()

	packed := reg.PackValue([]byte("hello"), 7)
	ctx.Publish(packed, &paxoscore.SMContext{SMID: 7}, -1)
	loop.Notify()

	id, code := ctx.AwaitResult()
	c.Assert(code, check.Equals, paxoscore.OK)
	c.Assert(id, check.Equals, uint64(0))
}

func (s *LoopSuite) TestSecondValueGetsNextInstanceID(c *check.C) {
	ctx := commitctx.New()
	reg := smfac.New()
	acceptors := []Acceptor{NewMemoryAcceptor(), NewMemoryAcceptor(), NewMemoryAcceptor()}
	loop := New(ctx, reg, acceptors)
	loop.Start()
	defer loop.Stop()

	for i := 0; i < 2; i++ {
		packed := reg.PackValue([]byte("v"), 7)
		ctx.Publish(packed, &paxoscore.SMContext{SMID: 7}, -1)
		loop.Notify()
		id, code := ctx.AwaitResult()
		c.Assert(code, check.Equals, paxoscore.OK)
		c.Assert(id, check.Equals, uint64(i))
	}
}

func (s *LoopSuite) TestStopDrainsCleanly(c *check.C) {
	ctx := commitctx.New()
	reg := smfac.New()
	loop := New(ctx, reg, []Acceptor{NewMemoryAcceptor()})
	loop.Start()
	time.Sleep(5 * time.Millisecond)
	loop.Stop()
}
