// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"log"

	"movierec"
)

func main() {
	if err := movierec.Run(); err != nil {
		log.Fatal(err)
	}
}
