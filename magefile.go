//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

const meetsimBinary = "bin/meetsim"

var Default = Build

func Build() error {
	fmt.Println("building...")
	cmd := exec.Command("go", "build", "./...")
	connectStd(cmd)
	return cmd.Run()
}

// builds bin/meetsim when its sources changed
func Meetsim() error {
	updated, err := target.Dir(meetsimBinary, "cmd/meetsim", "pkg", "go.mod")
	if err != nil {
		return err
	}
	if !updated {
		return nil
	}

	fmt.Println("building meetsim...")
	if err := os.MkdirAll("bin", 0755); err != nil {
		return err
	}
	cmd := exec.Command("go", "build", "-o", meetsimBinary, "./cmd/meetsim")
	connectStd(cmd)
	return cmd.Run()
}

func Test() error {
	mg.Deps(Build)

	fmt.Println("testing...")
	cmd := exec.Command("go", "test", "-race", "./...")
	connectStd(cmd)
	return cmd.Run()
}

func Clean() error {
	return os.RemoveAll("bin")
}

func connectStd(cmd *exec.Cmd) {
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
}
