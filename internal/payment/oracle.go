package payment

import (
	"context"

	"github.com/frahmantamala/payment-gateway/internal/core/common/simulation"
	paymentDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
)

type Outcome struct {
	Success bool
}

// SettlementOracle decides whether a pending payment settles.
type SettlementOracle interface {
	Settle(ctx context.Context, p *Payment) (Outcome, error)
}

type OracleConfig struct {
	TestMode        bool
	TestSuccess     bool
	UPISuccessRate  float64
	CardSuccessRate float64
}

// SimulatedOracle replaces a payment network with a weighted coin flip.
type SimulatedOracle struct {
	config OracleConfig
	chance func(p float64) bool
}

func NewSimulatedOracle(config OracleConfig) *SimulatedOracle {
	if config.UPISuccessRate == 0 {
		config.UPISuccessRate = 0.90
	}
	if config.CardSuccessRate == 0 {
		config.CardSuccessRate = 0.95
	}
	return &SimulatedOracle{config: config, chance: simulation.Chance}
}

func (o *SimulatedOracle) Settle(ctx context.Context, p *Payment) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if o.config.TestMode {
		return Outcome{Success: o.config.TestSuccess}, nil
	}

	rate := o.config.CardSuccessRate
	if p.Method == paymentDatamodel.MethodUPI {
		rate = o.config.UPISuccessRate
	}
	return Outcome{Success: o.chance(rate)}, nil
}
