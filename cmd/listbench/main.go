// Command listbench drives a phobos List through a synthetic
// allocate/deallocate workload and reports how many idle children Reap
// destroyed. Grounded in bench/aisloader's shape (urfave/cli flags,
// an mpb progress bar), scaled down to a single
// in-process workload instead of a cluster-facing load generator.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/rexso/phobos/internal/xmem"
	"github.com/rexso/phobos/list"
	"github.com/rexso/phobos/list/child"
)

func main() {
	app := cli.NewApp()
	app.Name = "listbench"
	app.Usage = "exercise a phobos composite List with a synthetic workload"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "ops", Value: 100000, Usage: "number of allocate/deallocate cycles"},
		cli.IntFlag{Name: "size", Value: 256, Usage: "block size in bytes"},
		cli.IntFlag{Name: "region", Value: xmem.MiB, Usage: "per-child region size in bytes"},
		cli.BoolFlag{Name: "ouroboros", Usage: "run in ouroboros (self-hosted) bookkeeping mode"},
		cli.DurationFlag{Name: "idle", Value: 2 * time.Second, Usage: "Reap idle threshold"},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "listbench:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ops := c.Int("ops")
	size := c.Int("size")
	region := c.Int("region")
	idle := c.Duration("idle")

	factory := func(n int) (list.Allocator, error) {
		if n > region {
			region = n
		}
		return child.NewRegion(region), nil
	}

	cfg := list.Config{Factory: factory, Filter: true}
	if !c.Bool("ouroboros") {
		cfg.Bookkeeping = child.NewRegion(1 << 16)
	}
	l := list.New(cfg)

	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(ops),
		mpb.PrependDecorators(decor.Name("listbench")),
		mpb.AppendDecorators(decor.Percentage()),
	)

	live := make([][]byte, 0, 1024)
	var reaped int
	for i := 0; i < ops; i++ {
		if i%3 != 0 && len(live) > 0 {
			b := live[len(live)-1]
			live = live[:len(live)-1]
			l.Deallocate(b)
		} else {
			b := l.Allocate(size)
			if b != nil {
				live = append(live, b)
			}
		}
		if i%10000 == 0 {
			reaped += l.Reap(idle)
		}
		bar.Increment()
	}
	p.Wait()

	for _, b := range live {
		l.Deallocate(b)
	}
	l.DeallocateAll()

	fmt.Printf("ops=%d size=%d reaped=%d\n", ops, size, reaped)
	return nil
}
