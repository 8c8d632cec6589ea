package session

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ToJSON encodes a value to string
func ToJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// FormatAmount formats an amount in minor units with 2 decimal places
func FormatAmount(minor int64) string {
	return strconv.FormatFloat(float64(minor)/100, 'f', 2, 64)
}

// FormatRemaining renders whole seconds as mm:ss
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
