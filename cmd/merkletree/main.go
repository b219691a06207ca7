// merkletree maintains a persistent incremental Merkle tree from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/colorfulnotion/incmerkle/merkleerrors"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		os.Exit(1)
	}
}

// errorLine prefixes tree errors with their code, e.g. [M2_IndexOutOfRange].
func errorLine(err error) string {
	if code := merkleerrors.GetErrorCodeWithName(err); code != "" {
		return fmt.Sprintf("❌ [%s] %v", code, err)
	}
	return fmt.Sprintf("❌ %v", err)
}
