package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldFeature is the structured log field key for the coaching feature name.
	FieldFeature = "feature"
	// FieldSession is the structured log field key for the stream session identifier.
	FieldSession = "session_id"
	// FieldEndpoint is the structured log field key for the streaming endpoint.
	FieldEndpoint = "endpoint"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	logger = OrNop(logger)

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// StreamFields returns the fields identifying one streaming operation.
// Empty values are skipped to keep entries compact.
func StreamFields(feature, sessionID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldFeature, Value: feature},
		StringField{Key: FieldSession, Value: sessionID},
	)
}

// WithStreamFields attaches the stream identification fields to the provided logger.
func WithStreamFields(logger *zap.Logger, feature, sessionID string) *zap.Logger {
	return WithFields(logger, StreamFields(feature, sessionID)...)
}
