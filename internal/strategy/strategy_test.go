package strategy

import (
	"errors"
	"testing"

	"athena-engine/internal/model"
	"athena-engine/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnknownStrategy(t *testing.T) {
	_, err := New(&service.StrategyConfig{Name: "no-such-strategy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-strategy")
	assert.Contains(t, err.Error(), "bollinger")
}

func TestNewBollingerFromRegistry(t *testing.T) {
	s, err := New(&service.StrategyConfig{
		Name:      "bollinger",
		Bollinger: service.BollingerConfig{Window: 20, StdMultiplier: 2},
	})
	require.NoError(t, err)
	assert.IsType(t, &Bollinger{}, s)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register("bollinger", func(*service.StrategyConfig) (Strategy, error) {
			return nil, errors.New("unused")
		})
	})
}

type panickyStrategy struct{}

func (panickyStrategy) Signal(string, float64) model.Signal {
	panic("strategy bug")
}

type emptySignalStrategy struct{}

func (emptySignalStrategy) Signal(string, float64) model.Signal { return "" }

func TestSafeSignalRecoversPanic(t *testing.T) {
	sig, err := SafeSignal(panickyStrategy{}, "2024-01-01 00:00:00 close", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy bug")
	assert.Equal(t, model.SignalNone, sig)
}

func TestSafeSignalNormalizesEmptySignal(t *testing.T) {
	sig, err := SafeSignal(emptySignalStrategy{}, "label", 100)
	require.NoError(t, err)
	assert.Equal(t, model.SignalNone, sig)
}
