package messaging

import (
	"strconv"
	"strings"
)

// GetEntry returns the first match from a map and handles keys as non case sensitive.
func GetEntry(m map[string]interface{}, key string) interface{} {
	key = strings.ToLower(key)
	for i, k := range m {
		if strings.ToLower(i) == key {
			return k
		}
	}

	return nil
}

// getString returns a string entry. Numbers and booleans, which yaml decodes
// into their own types, are formatted.
func getString(m map[string]interface{}, key string) (string, bool) {
	switch v := GetEntry(m, key).(type) {
	case string:
		return v, true
	case int:
		return strconv.Itoa(v), true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

func mustParseBool(str string) bool {
	boolean, _ := strconv.ParseBool(str)

	return boolean
}
