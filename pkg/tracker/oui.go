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

import "strings"

// ouiVendors maps IEEE OUI prefixes (first three octets, lower-case,
// colon-separated) to vendor names. The table covers vendors common on
// home networks; unknown prefixes resolve to "".
var ouiVendors = map[string]string{
	"00:03:93": "Apple, Inc.",
	"00:17:f2": "Apple, Inc.",
	"3c:06:30": "Apple, Inc.",
	"a4:83:e7": "Apple, Inc.",
	"f0:18:98": "Apple, Inc.",
	"dc:a6:32": "Raspberry Pi Trading Ltd",
	"b8:27:eb": "Raspberry Pi Foundation",
	"e4:5f:01": "Raspberry Pi Trading Ltd",
	"28:6c:07": "Xiaomi Communications Co Ltd",
	"64:09:80": "Xiaomi Communications Co Ltd",
	"5c:cf:7f": "Espressif Inc.",
	"24:0a:c4": "Espressif Inc.",
	"30:ae:a4": "Espressif Inc.",
	"84:cc:a8": "Espressif Inc.",
	"ec:fa:bc": "Espressif Inc.",
	"00:17:88": "Philips Lighting BV",
	"ec:b5:fa": "Philips Lighting BV",
	"18:b4:30": "Nest Labs Inc.",
	"64:16:66": "Nest Labs Inc.",
	"f4:f5:d8": "Google, Inc.",
	"54:60:09": "Google, Inc.",
	"30:fd:38": "Google, Inc.",
	"44:65:0d": "Amazon Technologies Inc.",
	"74:c2:46": "Amazon Technologies Inc.",
	"fc:65:de": "Amazon Technologies Inc.",
	"0c:47:c9": "Amazon Technologies Inc.",
	"78:4f:43": "Samsung Electronics Co.,Ltd",
	"8c:71:f8": "Samsung Electronics Co.,Ltd",
	"e8:50:8b": "Samsung Electronics Co.,Ltd",
	"00:24:e4": "Withings",
	"5c:aa:fd": "Sonos, Inc.",
	"00:0e:58": "Sonos, Inc.",
	"94:9f:3e": "Sonos, Inc.",
	"f0:9f:c2": "Ubiquiti Inc",
	"fc:ec:da": "Ubiquiti Inc",
	"74:ac:b9": "Ubiquiti Inc",
	"b4:fb:e4": "Ubiquiti Inc",
	"50:c7:bf": "TP-Link Corporation Limited",
	"98:da:c4": "TP-Link Corporation Limited",
	"c0:06:c3": "TP-Link Corporation Limited",
	"a0:40:a0": "Netgear",
	"9c:3d:cf": "Netgear",
	"00:1b:63": "Apple, Inc.",
	"00:50:56": "VMware, Inc.",
	"00:0c:29": "VMware, Inc.",
	"52:54:00": "QEMU virtual NIC",
	"00:15:5d": "Microsoft Corporation",
	"3c:e1:a1": "Intel Corporate",
	"a0:a4:c5": "Intel Corporate",
	"8c:aa:b5": "Intel Corporate",
	"00:1a:11": "Google, Inc.",
	"ac:63:be": "Amazon Technologies Inc.",
	"68:54:fd": "Amazon Technologies Inc.",
	"40:b4:cd": "Amazon Technologies Inc.",
	"d8:3a:dd": "Raspberry Pi Trading Ltd",
	"2c:aa:8e": "Wyze Labs Inc",
	"60:01:94": "Espressif Inc.",
	"48:3f:da": "Espressif Inc.",
	"10:52:1c": "Espressif Inc.",
}

// lookupVendor resolves a MAC address to its vendor name via the local
// OUI table. The result for a fixed MAC never changes, so callers cache
// it permanently once resolved.
func lookupVendor(mac string) string {
	mac = strings.ToLower(strings.ReplaceAll(mac, "-", ":"))
	if len(mac) < 8 {
		return ""
	}

	return ouiVendors[mac[:8]]
}
