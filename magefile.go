//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

func Build() error {
	mg.Deps(BuildTagstream)
	fmt.Println("Compilation finished")
	return nil
}

func BuildTagstream() error {
	fmt.Println("Building tagstream executable...")
	return goCmd("build", "-o", "./bin/tagstream", "./tagstream")
}

// Test runs the unit tests with the race detector
func Test() error {
	fmt.Println("Running tests...")
	return goCmd("test", "-race", "./...")
}

// goCmd runs the go tool with the cgo flags needed by HDF5 and sqlite.
func goCmd(args ...string) error {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
