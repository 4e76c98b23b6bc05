package main

import "github.com/jmehdipour/clinic-crm/cmd"

func main() {
	cmd.Execute()
}
