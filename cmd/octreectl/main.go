// Command octreectl is a demonstration harness for the distributed
// octree construction pipeline: it drives pkg/octree.New over an
// in-process local.Communicator fleet, not a real MPI job.
package main

import "github.com/distoctree/distoctree/cmd/octreectl/cmd"

func main() {
	cmd.Execute()
}
