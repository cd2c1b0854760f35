//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Prints the layouts of the pipelines in rootsig.toml.
func (Run) Layout() error {
	fmt.Println("Describe pipelines...")
	return rootsig("layout")
}

// Warms every configured pipeline and prints the cache statistics.
func (Run) Warm() error {
	return rootsig("warm")
}

// Follows the shader directory until interrupted.
func (Run) Watch() error {
	return rootsig("watch")
}

func rootsig(args ...string) error {
	if _, err := executeCmd("go", withArgs(append([]string{"run", ".", "--config", "rootsig.toml"}, args...)...), withStream()); err != nil {
		return err
	}
	return nil
}
