// Command born-infer compiles YAML graphs with the composite engine and runs them.
//
// Usage:
//
//	born-infer run model.yaml --input x=1,2,3,4 --backends cpu,generic --explain
//	born-infer backends
//	born-infer version
package main

import (
	"os"

	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

func main() {
	defer klog.Flush()
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
