package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatePart(t *testing.T) {
	assert.Equal(t, "2024-01-15", DatePart("2024-01-15"))
	assert.Equal(t, "2024-01-15", DatePart(" 2024-01-15T00:00:00 "))
	assert.Equal(t, "2024-04-22", DatePart("2024-04-22T08:30:00+03:00"))
	assert.Equal(t, "", DatePart(""))
}
