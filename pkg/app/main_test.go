// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
