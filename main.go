// The main package for the revloop executable.
package main

import "github.com/revloop/revloop/cmd"

func main() {
	cmd.Execute()
}
