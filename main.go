package main

import "crm-backend/cmd"

func main() {
	cmd.Execute()
}
