// Command mcpwatch runs the MCP observability gateway.
package main

import "github.com/mcpwatch/gateway/cmd/mcpwatch/cmd"

func main() {
	cmd.Execute()
}
