// SPDX-License-Identifier: MPL-2.0

package main

import cmd "srcbench-cli/cmd/srcbench"

func main() {
	cmd.Execute()
}
