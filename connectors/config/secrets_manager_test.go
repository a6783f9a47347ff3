// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskARN(t *testing.T) {
	assert.Equal(t, "***", maskARN("short"))

	long := "arn:aws:secretsmanager:us-east-1:1234:secret:controller-token-AbCdEf"
	masked := maskARN(long)
	assert.Equal(t, "..."+long[len(long)-8:], masked)
}
