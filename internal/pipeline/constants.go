package pipeline

// Default values for statement parsing.
const (
	// DefaultModelName is the default Gemini model used for reading statements.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultTemperature keeps the extraction close to deterministic.
	DefaultTemperature = 0.1

	// maxStatementTextLen caps the extracted text sent in a prompt; longer
	// documents are sent as inline PDF instead.
	maxStatementTextLen = 200_000
)
