package application

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// gatewayPayload is one gateway's batch of sensor entries as delivered on
// the bus.
type gatewayPayload struct {
	GMAC string        `json:"gmac"`
	Obj  []sensorEntry `json:"obj"`
}

// sensorEntry is one BLE advertisement relayed by a gateway. Type 1 is the
// temperature/humidity beacon; everything else is skipped.
type sensorEntry struct {
	DMAC     string  `json:"dmac"`
	Type     int     `json:"type"`
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
	VBatt    int     `json:"vbatt"`
	RSSI     int     `json:"rssi"`
	Time     string  `json:"time"`
	Alarm    *int    `json:"alarm,omitempty"`
}

const payloadPreviewLimit = 200

// decodePayload accepts a single gateway object, an array of them, or the
// historical nested-array form, which is unwrapped until the first element
// is an object.
func decodePayload(data []byte) ([]gatewayPayload, error) {
	raw := json.RawMessage(bytes.TrimSpace(data))
	for {
		if len(raw) == 0 {
			return nil, fmt.Errorf("empty payload")
		}
		switch raw[0] {
		case '{':
			var single gatewayPayload
			if err := json.Unmarshal(raw, &single); err != nil {
				return nil, fmt.Errorf("failed to decode gateway object: %w", err)
			}
			return []gatewayPayload{single}, nil
		case '[':
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("failed to decode gateway array: %w", err)
			}
			if len(items) == 0 {
				return nil, nil
			}
			first := bytes.TrimSpace(items[0])
			if len(first) > 0 && first[0] == '[' {
				raw = items[0]
				continue
			}
			out := make([]gatewayPayload, 0, len(items))
			for _, item := range items {
				var gw gatewayPayload
				if err := json.Unmarshal(item, &gw); err != nil {
					return nil, fmt.Errorf("failed to decode gateway entry: %w", err)
				}
				out = append(out, gw)
			}
			return out, nil
		default:
			return nil, fmt.Errorf("payload is neither object nor array")
		}
	}
}

// payloadPreview truncates a raw payload for error logs.
func payloadPreview(data []byte) string {
	s := string(data)
	if len(s) > payloadPreviewLimit {
		return s[:payloadPreviewLimit] + "..."
	}
	return s
}

// canonicalMAC normalises a MAC to colon-separated uppercase. Already
// colonised input only gets uppercased, so the function is idempotent.
func canonicalMAC(mac string) string {
	mac = strings.ToUpper(strings.TrimSpace(mac))
	if mac == "" || strings.Contains(mac, ":") {
		return mac
	}
	var b strings.Builder
	b.Grow(len(mac) + len(mac)/2)
	for i := 0; i < len(mac); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		end := i + 2
		if end > len(mac) {
			end = len(mac)
		}
		b.WriteString(mac[i:end])
	}
	return b.String()
}

// batteryPercent converts beacon voltage in millivolts to a 0..100 percent,
// saturating at both ends.
func batteryPercent(mv int) int {
	pct := (float64(mv) - 2500.0) / (3600.0 - 2500.0) * 100.0
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return int(math.Round(pct))
}

// persistTimestamp picks the gateway-reported read time when present,
// normalised to ISO form, otherwise the given fallback.
func persistTimestamp(entryTime, fallback string) string {
	if entryTime == "" {
		return fallback
	}
	return strings.Replace(entryTime, " ", "T", 1)
}

// defaultBlocklist holds sensor MACs permanently excluded from processing.
// These are bench units that still advertise on customer gateways.
var defaultBlocklist = map[string]bool{
	"AC:23:3F:AA:00:01": true,
	"AC:23:3F:AA:00:02": true,
}
