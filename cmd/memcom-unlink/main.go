// Command memcom-unlink removes a named shared memory region left behind by
// a crashed or killed ring writer, without needing to know its shape.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/wheresjames/memcom-go/internal/shm"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <name> [name...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	status := 0
	for _, name := range flag.Args() {
		if err := shm.Unlink(name); err != nil {
			log.Error("unlink failed", "name", name, "err", err)
			status = 1
			continue
		}
		log.Info("unlinked", "name", name)
	}
	os.Exit(status)
}
