package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeDuplicateNode        ErrorCode = 102
	ErrCodeUnresolvedReference  ErrorCode = 103
	ErrCodeMixedValuation       ErrorCode = 104
	ErrCodeInvalidNode          ErrorCode = 105
	ErrCodeUnknownAlgo          ErrorCode = 106
	ErrCodeMissingParameter     ErrorCode = 107
	ErrCodeInvalidType          ErrorCode = 108
	ErrCodeVersionMismatch      ErrorCode = 109
	ErrCodeEmptyUniverse        ErrorCode = 110
	ErrCodeAlgoAlreadyExists    ErrorCode = 111

	// Data errors (200-299)
	ErrCodePriceUnavailable      ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeQueryFailed           ErrorCode = 202
	ErrCodeNoDataFound           ErrorCode = 203
	ErrCodeAuxTableNotFound      ErrorCode = 204
	ErrCodeInsufficientData      ErrorCode = 205

	// Allocation errors (500-599)
	ErrCodeInsufficientCash    ErrorCode = 500
	ErrCodeShortNotAllowed     ErrorCode = 501
	ErrCodeUnpricedInstrument  ErrorCode = 502
	ErrCodeUnknownChild        ErrorCode = 503
	ErrCodeNotionalUnsupported ErrorCode = 504

	// Sequencing errors (600-699)
	ErrCodeNonIncreasingTick ErrorCode = 600
	ErrCodeDuplicateTick     ErrorCode = 601
	ErrCodeInvalidState      ErrorCode = 602
	ErrCodeTickOutOfRange    ErrorCode = 603
	ErrCodeNotUpdated        ErrorCode = 604
	ErrCodeNoStrategies      ErrorCode = 605
	ErrCodeNoDatasource      ErrorCode = 606
	ErrCodeStepFailed        ErrorCode = 607

	// Callback errors (800-899)
	ErrCodeCallbackFailed ErrorCode = 800

	// Invariant violations (900-999)
	ErrCodeConservationViolated ErrorCode = 900
	ErrCodeWeightViolated       ErrorCode = 901
	ErrCodeNegativeCash         ErrorCode = 902
	ErrCodeNonFiniteValue       ErrorCode = 903
	ErrCodeBankrupt             ErrorCode = 904
)

// Category is the failure class an error code belongs to.
type Category string

const (
	CategoryUnknown       Category = "unknown"
	CategoryConfiguration Category = "configuration"
	CategoryData          Category = "data"
	CategoryAllocation    Category = "allocation"
	CategorySequencing    Category = "sequencing"
	CategoryCallback      Category = "callback"
	CategoryInvariant     Category = "invariant"
)

// Category maps the code onto its range.
func (c ErrorCode) Category() Category {
	switch {
	case c >= 100 && c < 200:
		return CategoryConfiguration
	case c >= 200 && c < 300:
		return CategoryData
	case c >= 500 && c < 600:
		return CategoryAllocation
	case c >= 600 && c < 700:
		return CategorySequencing
	case c >= 800 && c < 900:
		return CategoryCallback
	case c >= 900 && c < 1000:
		return CategoryInvariant
	default:
		return CategoryUnknown
	}
}
