// Command relaycache runs the content-addressed package cache: add
// packages to the object database, list what's cached, or serve the
// binary-cache HTTP surface.
package main

import "github.com/relaycache/relaycache/cli"

func main() {
	cli.Execute()
}
