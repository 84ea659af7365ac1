// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetLocalIP(t *testing.T) {
	ip, err := GetLocalIP()
	require.NoError(t, err)
	t.Log(ip)
}

func TestNewTraceID(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	require.NotEqual(t, "", a)
	require.NotEqual(t, a, b)
}
