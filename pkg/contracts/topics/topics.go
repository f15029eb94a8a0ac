package topics

const (
	// Entries
	EntryPlaced  = "entry_placed"
	EntrySettled = "entry_settled"

	// Resultados observados das prop lines (ingestão externa)
	PropResults = "prop_results"

	// DLQs
	PropResultsDLQ = "prop_results_dlq"
)
