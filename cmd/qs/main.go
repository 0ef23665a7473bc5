package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func main() {
	bin, err := exec.LookPath("qsched")
	if err != nil {
		fmt.Fprintln(os.Stderr, "qs: qsched not found on PATH")
		os.Exit(1)
	}
	if err := syscall.Exec(bin, append([]string{"qsched"}, os.Args[1:]...), os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "qs: %v\n", err)
		os.Exit(1)
	}
}
