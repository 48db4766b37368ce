package cli

var (
	ParseSecretEntries = parseSecretEntries
	PrintCredentials   = printCredentials
	GetIndexConfig     = getIndexConfig
	SeedWorkItems      = seedWorkItems
)
