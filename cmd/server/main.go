// Command server hosts the streaming avatar overlay: it owns one avatar
// session and serves its status, mute control and media to browsers.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
