// Command starbridge runs JavaScript against an embedded Starlark
// interpreter.
package main

func main() {
	Execute()
}
