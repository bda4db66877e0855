// Command toxscan annotates HTML and text files offline and inspects the lexicon and event journal.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
