package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldTraceID       = "trace_id"
	FieldUpdateID      = "update_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldChatID        = "chat_id"
	FieldState         = "state"
	FieldAction        = "action"
	FieldSpreadsheetID = "spreadsheet_id"
	FieldSheet         = "sheet"
	FieldRowIndex      = "row_index"
	FieldCounterparty  = "counterparty"
	FieldKind          = "kind"
	FieldDate          = "date"
	FieldAmount        = "amount"
	FieldEventID       = "event_id"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentBot       = "bot"
	ComponentLedger    = "ledger"
	ComponentTelegram  = "telegram"
	ComponentExtract   = "extract"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpAppend   = "append"
	OpUpdate   = "update"
	OpRemove   = "remove"
	OpLocate   = "locate"
	OpSort     = "sort"
	OpRead     = "read"
	OpTransfer = "transfer"
	OpPublish  = "publish"
	OpExtract  = "extract"
	OpRender   = "render"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypePersistence   = "persistence_error"
	ErrorTypePartialWrite  = "partial_write_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithTraceID adds the trace id of the handled update
func (f LogFields) WithTraceID(traceID string) LogFields {
	f[FieldTraceID] = traceID
	return f
}

// WithChat adds the chat id
func (f LogFields) WithChat(chatID int64) LogFields {
	f[FieldChatID] = chatID
	return f
}

// WithError adds error fields
func (f LogFields) WithError(err error, errorType string) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorType] = errorType
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRow adds the natural key of a ledger row
func (f LogFields) WithRow(counterparty, kind, date, amount string) LogFields {
	f[FieldCounterparty] = counterparty
	f[FieldKind] = kind
	f[FieldDate] = date
	f[FieldAmount] = amount
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
