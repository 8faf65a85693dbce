package commitctx

import (
	"testing"
	"time"

	"gopkg.in/check.v1"

	"github.com/bdeggleston/paxoscommit/internal/paxoscore"
)

func Test(t *testing.T) { check.TestingT(t) }

type MemorySuite struct{}

var _ = check.Suite(&MemorySuite{})

func (s *MemorySuite) TestPublishAwaitRoundTrip(c *check.C) {
	ctx := New()
	ctx.Publish([]byte("v"), nil, -1)

	pending, ok := ctx.Pending()
	c.Assert(ok, check.Equals, true)
	c.Assert(pending.Value, check.DeepEquals, []byte("v"))

	done := make(chan struct{})
	go func() {
		id, code := ctx.AwaitResult()
		c.Assert(id, check.Equals, uint64(5))
		c.Assert(code, check.Equals, paxoscore.OK)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	ctx.Resolve(pending.Generation, 5, paxoscore.OK)

	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("AwaitResult never returned")
	}
}

// A Resolve for a generation the caller has since abandoned (by
// publishing a fresh attempt) must never be observed by the fresh
// attempt's AwaitResult -- the invariant that motivated the generation
// counter in the first place.
func (s *MemorySuite) TestStaleResolveDiscarded(c *check.C) {
	ctx := New()
	ctx.Publish([]byte("first"), nil, -1)
	pending, ok := ctx.Pending()
	c.Assert(ok, check.Equals, true)
	staleGen := pending.Generation

	// Abandon the first attempt by publishing a second one before it
	// resolves.
	ctx.Publish([]byte("second"), nil, -1)

	// The stale resolve for the first generation must be dropped.
	ctx.Resolve(staleGen, 999, paxoscore.OK)

	pending2, ok := ctx.Pending()
	c.Assert(ok, check.Equals, true)
	c.Assert(pending2.Value, check.DeepEquals, []byte("second"))

	done := make(chan struct{})
	go func() {
		id, code := ctx.AwaitResult()
		c.Assert(id, check.Equals, uint64(11))
		c.Assert(code, check.Equals, paxoscore.OK)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	ctx.Resolve(pending2.Generation, 11, paxoscore.OK)

	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("AwaitResult never returned the fresh generation's result")
	}
}

func (s *MemorySuite) TestWatchdogTimesOutWithoutResolve(c *check.C) {
	ctx := New()
	ctx.Publish([]byte("v"), nil, 50)

	start := time.Now()
	_, code := ctx.AwaitResult()
	c.Assert(code, check.Equals, paxoscore.Timeout)
	c.Assert(time.Since(start) >= 50*time.Millisecond, check.Equals, true)
}
