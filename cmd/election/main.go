// Command election drives the commit path the way election.cpp in the
// original sample drove phxpaxos::Node: wire a Committer, submit a node
// id through the built-in master-lease state machine, and report the
// resulting lease holder.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	logging "github.com/op/go-logging"

	paxoscommit "github.com/bdeggleston/paxoscommit"
	"github.com/bdeggleston/paxoscommit/internal/paxoscore"
)

func main() {
	nodeID := flag.String("node", "node-1", "this node's id, submitted as a master-lease candidate")
	leaseMS := flag.Int("lease-ms", 3000, "master lease duration in milliseconds")
	flag.Parse()

	logging.SetLevel(logging.INFO, "")

	c, reg, shutdown, err := paxoscommit.NewCommitter(
		paxoscommit.WithTimeout(2000),
		paxoscommit.WithMaxHoldThreads(64),
		paxoscommit.WithPeers(3),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run paxos fail:", err)
		os.Exit(1)
	}
	defer shutdown()

	reg.Master().SetLease(*leaseMS)
	reg.Master().OnChange(func(holder string, version uint64) {
		fmt.Printf("master change!!! newmaster %s version %d\n", holder, version)
	})

	fmt.Println("run paxos ok")

	instanceID, err := c.SubmitWithCtx([]byte(*nodeID), &paxoscommit.SMContext{
		SMID: paxoscommit.MasterStateMachineID,
	})
	if err != nil {
		if ce, ok := err.(*paxoscore.CommitError); ok {
			fmt.Fprintf(os.Stderr, "submit fail, code %s\n", ce.Code)
		} else {
			fmt.Fprintln(os.Stderr, "submit fail:", err)
		}
		os.Exit(1)
	}

	time.Sleep(10 * time.Millisecond)

	holder, version := reg.Master().CurrentMaster()
	fmt.Printf("instance %d committed, is master: %v, current master %s (version %d)\n",
		instanceID, reg.Master().IsMaster(*nodeID), holder, version)
}
