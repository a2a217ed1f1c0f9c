package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineInput struct {
	Description string          `validate:"required"`
	Amount      decimal.Decimal `validate:"gte=0"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(lineInput{Description: "Conduit", Amount: decimal.NewFromInt(20)}))

	err := ValidateStruct(lineInput{Amount: decimal.NewFromInt(-1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lineInput.Description failed required")
	assert.Contains(t, err.Error(), "lineInput.Amount must satisfy gte=0")
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggerConfig{Level: "debug", Format: "json", OutputPath: t.TempDir() + "/logs/app.log"})
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, logger.Sync())

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}
