// Command envelopes-cli inspects and drives challenges in the configured
// local store.
package main

import (
	"fmt"
	"os"
)

func main() {
	a := &app{}
	defer a.close()

	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		a.close()
		os.Exit(1)
	}
}
