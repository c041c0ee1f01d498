/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package main

import (
	"fmt"
	"os"

	"github.com/wren-im/wren/app"
)

func main() {
	if err := app.New(os.Stdout, os.Args).Run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "wren: %v\n", err)
		os.Exit(1)
	}
}
