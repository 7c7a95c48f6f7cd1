// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hushkey Contributors

package crypto

import (
	"encoding/base64"

	"github.com/samber/oops"
)

// EncodeBase64 encodes data as standard base64.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes standard base64. Round-trips with EncodeBase64
// without loss.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, oops.Code("CRYPTO_BAD_BASE64").Wrap(err)
	}
	return data, nil
}
