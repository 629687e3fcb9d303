package config

// DefaultSectorOrder is the evaluation order of the built-in sectors.
var DefaultSectorOrder = []string{"NIFTY50", "BANKNIFTY", "IT", "PHARMA", "AUTO", "FMCG", "ENERGY", "METAL"}

// DefaultUniverse returns the built-in sector to NSE symbol map.
func DefaultUniverse() map[string][]string {
	return map[string][]string{
		"NIFTY50": {
			"RELIANCE", "TCS", "HDFCBANK", "INFY", "ICICIBANK",
			"HINDUNILVR", "BHARTIARTL", "SBIN", "BAJFINANCE", "LT",
		},
		"BANKNIFTY": {
			"HDFCBANK", "ICICIBANK", "SBIN", "KOTAKBANK",
			"AXISBANK", "INDUSINDBK", "BANDHANBNK", "FEDERALBNK",
		},
		"IT": {
			"TCS", "INFY", "WIPRO", "HCLTECH", "TECHM",
			"LTIM", "MPHASIS", "COFORGE",
		},
		"PHARMA": {
			"SUNPHARMA", "DRREDDY", "CIPLA", "DIVISLAB",
			"APOLLOHOSP", "LUPIN", "AUROPHARMA", "BIOCON",
		},
		"AUTO": {
			"MARUTI", "TATAMOTORS", "M&M", "BAJAJ-AUTO",
			"HEROMOTOCO", "EICHERMOT", "ASHOKLEY", "TVSMOTOR",
		},
		"FMCG": {
			"HINDUNILVR", "ITC", "NESTLEIND", "BRITANNIA",
			"GODREJCP", "DABUR", "MARICO", "COLPAL",
		},
		"ENERGY": {
			"RELIANCE", "ONGC", "NTPC", "POWERGRID",
			"ADANIGREEN", "TATAPOWER", "BPCL", "IOC",
		},
		"METAL": {
			"TATASTEEL", "JSWSTEEL", "HINDALCO", "VEDL",
			"COALINDIA", "NMDC", "NATIONALUM", "SAIL",
		},
	}
}
