package log

import (
	"fmt"

	"go.uber.org/zap"
)

// toFields turns alternating key/value arguments into zap fields.
//
// zap.Field and error arguments may appear anywhere and take no key. A key
// that is not a string is formatted with fmt. A trailing value without a key
// is logged under "argN", N being its position.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, (len(args)+1)/2)
	for i := 0; i < len(args); i++ {
		switch arg := args[i].(type) {
		case zap.Field:
			fields = append(fields, arg)
			continue
		case error:
			fields = append(fields, zap.Error(arg))
			continue
		}

		if i+1 == len(args) {
			fields = append(fields, zap.Any(fmt.Sprintf("arg%d", i), args[i]))
			break
		}

		fields = append(fields, zap.Any(fieldKey(args[i]), args[i+1]))
		i++
	}
	return fields
}

func fieldKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}
