// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"io"
)

// maxResponseSize bounds how much of any response body is read into
// memory. Flag payloads and entity listings are small; anything near
// this limit indicates a misbehaving server.
const maxResponseSize = 8 << 20

// readBody drains a response body with the size bound applied and
// reports an error when the server sends more than the limit.
func readBody(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxResponseSize {
		return nil, fmt.Errorf("response body exceeds %d byte limit", maxResponseSize)
	}
	return data, nil
}
