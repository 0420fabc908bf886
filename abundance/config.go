// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package abundance

// DefaultConfig mirrors the documented EM defaults.
var DefaultConfig = Config{
	MaxIterations:        300,
	Eps:                  0.001,
	MinCnt:               0.1,
	ThresholdingIterStep: 10,
	Workers:              1,
}
