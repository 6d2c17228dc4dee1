package masking

import (
	"encoding/json"
	"strings"

	"gorm.io/datatypes"
)

const maskToken = "****"

var sensitiveKeys = map[string]struct{}{
	"sip_secret": {},
	"secret":     {},
	"password":   {},
}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// Snapshot renders v as JSON with credential fields masked. A nil v yields
// a nil document.
func Snapshot(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	masked, err := json.Marshal(maskValue("", decoded))
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(masked), nil
}

func maskValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if _, ok := sensitiveKeys[strings.ToLower(key)]; ok {
			return MaskSecret(cast)
		}
		return cast
	case map[string]any:
		out := make(map[string]any, len(cast))
		for k, v := range cast {
			out[k] = maskValue(k, v)
		}
		return out
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(key, item))
		}
		return out
	default:
		return value
	}
}
