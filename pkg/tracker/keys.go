/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tracker

import (
	"strings"
)

const fallbackLabel = "device"

// DeviceKey derives the identity key for a newly observed device from
// its reported name, MAC, and first IP address. The reconciler pins
// the minted key to the MAC afterwards, so a MAC-bearing device keeps
// its key across polls even when its IP or reported name changes.
// Without a MAC the key falls back to the sanitized IP, which is less
// stable: a nameless, MAC-less device whose IP changes becomes a new
// tracked entity.
func DeviceKey(name, mac, ip string) string {
	label := sanitizeLabel(name)
	if label == "" {
		label = fallbackLabel
	}

	if suffix := macSuffix(mac); suffix != "" {
		return label + "_" + suffix
	}

	if ipPart := sanitizeLabel(ip); ipPart != "" {
		return label + "_" + ipPart
	}

	return label
}

// macSuffix returns the last four hex characters of a MAC address,
// lower-cased, or "" when no MAC is present.
func macSuffix(mac string) string {
	hex := strings.ToLower(strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac))
	if len(hex) < 4 {
		return ""
	}

	return hex[len(hex)-4:]
}

// sanitizeLabel lower-cases a label and collapses every run of
// non-alphanumeric characters to a single underscore.
func sanitizeLabel(s string) string {
	var b strings.Builder

	lastUnderscore := true // trims leading separators

	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)

			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')

				lastUnderscore = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "_")
}
