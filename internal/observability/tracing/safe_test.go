package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSecrets(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/v1/users"),
		attribute.String("sip_secret", "hunter2"),
		attribute.String("Password", "x"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsFirstLine(t *testing.T) {
	err := SafeError(errors.New("reload failed\nResponse: Error\nMessage: denied"))
	assert.EqualError(t, err, "reload failed")
	assert.Nil(t, SafeError(nil))
}
