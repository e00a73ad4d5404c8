package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validBuy() *ParsedSignal {
	return &ParsedSignal{
		Symbol:      "XAUUSD",
		Action:      Buy,
		EntryMin:    2360,
		EntryMax:    2370,
		StopLoss:    2355,
		TakeProfits: []float64{2380, 2390},
	}
}

func TestParsedSignal_Entry(t *testing.T) {
	s := validBuy()
	assert.InDelta(t, 2365.0, s.Entry(), 1e-9)

	s.EntryMin, s.EntryMax = 2365, 2365
	assert.InDelta(t, 2365.0, s.Entry(), 1e-9)
}

func TestParsedSignal_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ParsedSignal)
		wantErr bool
	}{
		{"valid buy", func(s *ParsedSignal) {}, false},
		{"missing symbol", func(s *ParsedSignal) { s.Symbol = "" }, true},
		{"bad action", func(s *ParsedSignal) { s.Action = "HOLD" }, true},
		{"no take profits", func(s *ParsedSignal) { s.TakeProfits = nil }, true},
		{"zero stop loss", func(s *ParsedSignal) { s.StopLoss = 0 }, true},
		{"negative stop loss", func(s *ParsedSignal) { s.StopLoss = -1 }, true},
		{"inverted entry bounds", func(s *ParsedSignal) { s.EntryMin, s.EntryMax = 2370, 2360 }, true},
		{"buy stop above entry", func(s *ParsedSignal) { s.StopLoss = 2368 }, true},
		{"buy tp below entry", func(s *ParsedSignal) { s.TakeProfits = []float64{2350} }, true},
		{"buy tp equals entry", func(s *ParsedSignal) {
			s.EntryMin, s.EntryMax = 2365, 2365
			s.TakeProfits = []float64{2365}
		}, false},
		{"buy tps descending", func(s *ParsedSignal) { s.TakeProfits = []float64{2390, 2380} }, true},
		{"valid sell", func(s *ParsedSignal) {
			s.Action = Sell
			s.StopLoss = 2375
			s.TakeProfits = []float64{2355, 2350}
		}, false},
		{"sell stop below entry", func(s *ParsedSignal) {
			s.Action = Sell
			s.StopLoss = 2360
			s.TakeProfits = []float64{2355}
		}, true},
		{"sell tps ascending", func(s *ParsedSignal) {
			s.Action = Sell
			s.StopLoss = 2375
			s.TakeProfits = []float64{2350, 2355}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validBuy()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOrderSide_Opposite(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
}
