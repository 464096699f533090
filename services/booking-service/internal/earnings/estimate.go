package earnings

// Config fixes the payout policy. Zero values fall back to the platform
// defaults.
type Config struct {
	BaseFee        float64 // minimum payout per job, in currency units
	CommissionRate float64 // rider share of the appointment total
}

const (
	DefaultBaseFee        = 100.0
	DefaultCommissionRate = 0.15
)

func (c Config) withDefaults() Config {
	if c.BaseFee <= 0 {
		c.BaseFee = DefaultBaseFee
	}
	if c.CommissionRate <= 0 {
		c.CommissionRate = DefaultCommissionRate
	}
	return c
}

// Estimate is the rider payout for a job of the given total amount:
// the commission share, floored at the base fee. A non-positive total yields
// the base fee; the result is never negative. Pure function of its inputs.
func Estimate(totalAmount float64, cfg Config) float64 {
	cfg = cfg.withDefaults()
	if totalAmount <= 0 {
		return cfg.BaseFee
	}
	commission := totalAmount * cfg.CommissionRate
	if commission < cfg.BaseFee {
		return cfg.BaseFee
	}
	return commission
}
