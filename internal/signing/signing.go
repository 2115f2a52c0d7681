/*
Copyright 2024 SuiteSync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxTimestampAge is how far in the past a webhook timestamp may be.
	MaxTimestampAge = 300 * time.Second
	// MaxClockSkew is how far in the future a timestamp is tolerated.
	MaxClockSkew = 30 * time.Second

	// Unix second value for the year 2100. Timestamps at or below this are
	// interpreted as seconds, above as milliseconds.
	year2100Secs = int64(4102444800)
)

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an incoming webhook signature against the body.
// An optional "sha256=" prefix on the signature is stripped. Comparison is
// constant time; a malformed or wrong-length signature simply fails.
func VerifySignature(body []byte, signature, secret string) bool {
	sig := strings.TrimPrefix(signature, "sha256=")

	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := mac.Sum(nil)

	if len(got) != len(want) {
		return false
	}
	return hmac.Equal(got, want)
}

// VerifyTimestamp checks that a unix timestamp header value is within the
// accepted window around now. Values may be in seconds or milliseconds.
func VerifyTimestamp(raw string, now time.Time) bool {
	ts, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return false
	}

	millis := ts
	if ts <= year2100Secs {
		millis = ts * 1000
	}

	age := now.Sub(time.UnixMilli(millis))
	if age > MaxTimestampAge {
		return false
	}
	if age < -MaxClockSkew {
		return false
	}
	return true
}
