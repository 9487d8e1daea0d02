package models

// IronFlyPlan is a defined-risk structure: short straddle near 50 delta with
// protective wings snapped to listed strikes. All dollar values are rounded to
// cents. RiskReward is nil when max profit is not positive (unbounded ratio).
type IronFlyPlan struct {
	Symbol           string   `json:"symbol"`
	Expiration       string   `json:"expiration"`
	ShortCallStrike  float64  `json:"short_call_strike"`
	ShortPutStrike   float64  `json:"short_put_strike"`
	LongCallStrike   float64  `json:"long_call_strike"`
	LongPutStrike    float64  `json:"long_put_strike"`
	ShortCallPremium float64  `json:"short_call_premium"`
	ShortPutPremium  float64  `json:"short_put_premium"`
	LongCallPremium  float64  `json:"long_call_premium"`
	LongPutPremium   float64  `json:"long_put_premium"`
	TotalCredit      float64  `json:"total_credit"`
	TotalDebit       float64  `json:"total_debit"`
	NetCredit        float64  `json:"net_credit"`
	PutWingWidth     float64  `json:"put_wing_width"`
	CallWingWidth    float64  `json:"call_wing_width"`
	MaxProfit        float64  `json:"max_profit"`
	MaxRisk          float64  `json:"max_risk"`
	UpperBreakeven   float64  `json:"upper_breakeven"`
	LowerBreakeven   float64  `json:"lower_breakeven"`
	RiskReward       *float64 `json:"risk_reward_ratio,omitempty"`
}
