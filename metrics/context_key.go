package metrics

type contextKey string

func (c contextKey) String() string {
	return "vaultlineContextKey" + string(c)
}

var RetriesKey = contextKey("VaultlineRetries")
