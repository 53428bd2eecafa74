package catalog

// Categories shared by the AI and robotics ecosystems carry the same name in
// both definitions.
var (
	energyAndNuclear = Category{
		Name:    "Energy & Nuclear",
		Symbols: []string{"VST", "CEG", "NRG", "NEE", "OKLO", "SMR", "BWXT", "TLN"},
	}
	resources = Category{
		Name:    "Resources",
		Symbols: []string{"CCJ", "KAP.L", "MP", "FCX", "UUUU", "NXE", "DNN", "URA"},
	}
)

// AI is the AI supply chain, from hyperscalers down to uranium.
var AI = Definition{
	Ecosystem: EcosystemAI,
	Categories: []Category{
		{Name: "AI & Cloud", Symbols: []string{"MSFT", "GOOGL", "AMZN", "META", "PLTR", "SNOW", "CRWD", "MDB", "DDOG", "NET", "TEAM", "PATH"}},
		{Name: "Semiconductors", Symbols: []string{"NVDA", "TSM", "AMD", "AVGO", "ASML", "QCOM", "MU", "AMAT", "LRCX", "ADI", "TXN", "INTC", "ARM"}},
		{Name: "Infrastructure", Symbols: []string{"EQIX", "DLR", "VRT", "SBGSY", "STK", "ETN"}},
		energyAndNuclear,
		resources,
	},
}

// Robotics is the humanoid robotics supply chain across the US, Japan, China
// and Europe.
var Robotics = Definition{
	Ecosystem: EcosystemRobotics,
	Categories: []Category{
		{Name: "Humanoid & Industrial Robotics", Symbols: []string{"6954.T", "6506.T", "ISRG", "TER", "IRBT", "ABB", "BIDU", "XPEV"}},
		{Name: "Motion Control & Actuators", Symbols: []string{"ROK", "EMR", "PH", "ITW", "GNRC", "6501.T", "SIEGY"}},
		{Name: "Sensors & Vision", Symbols: []string{"CGNX", "NOVT", "TDY", "MKSI", "6861.T", "ON"}},
		{Name: "AI & Autonomy", Symbols: []string{"NVDA", "GOOGL", "TSLA", "AMZN"}},
		// Robotics tracks a narrower semiconductor basket under the shared name.
		{Name: "Semiconductors", Symbols: []string{"NVDA", "TSM", "AMD", "AVGO", "ASML", "QCOM", "MU", "INTC", "ARM"}},
		energyAndNuclear,
		resources,
	},
}

// Default returns the catalog of the published strategies.
func Default() *Catalog {
	return New(AI, Robotics)
}
