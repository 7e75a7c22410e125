// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import "github.com/radkit/locifilter"

func main() {
	locifilter.Main()
}
