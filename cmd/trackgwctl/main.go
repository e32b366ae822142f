// trackgwctl -- CLI client for the trackgw gateway daemon.
package main

import "github.com/intelcon-group/trackgw/cmd/trackgwctl/commands"

func main() {
	commands.Execute()
}
