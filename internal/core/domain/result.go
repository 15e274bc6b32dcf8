package domain

// OperationResult is the structured outcome of a saga. Business failures are
// reported here and never as Go errors.
type OperationResult struct {
	Success                bool          `json:"success"`
	ErrorCode              ErrorCode     `json:"error_code,omitempty"`
	Message                string        `json:"message"`
	State                  TransferState `json:"state,omitempty"`
	ReferenceID            string        `json:"reference_id,omitempty"`
	ReconciliationRequired bool          `json:"reconciliation_required,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(message, referenceID string) *OperationResult {
	return &OperationResult{Success: true, Message: message, ReferenceID: referenceID}
}

// Failed builds a failed result.
func Failed(code ErrorCode, message string) *OperationResult {
	return &OperationResult{Success: false, ErrorCode: code, Message: message}
}

// Unreconciled builds a failed result whose compensation did not complete.
// Funds are out of place until an operator reconciles them.
func Unreconciled(code ErrorCode, message string) *OperationResult {
	return &OperationResult{Success: false, ErrorCode: code, Message: message, ReconciliationRequired: true}
}

// Replayable reports whether the result may be served again for the same
// idempotency key. Transient faults are not replayable so the caller can
// retry; an unreconciled failure is, since a rerun would move funds again.
func (r *OperationResult) Replayable() bool {
	return r.Success || r.ErrorCode.IsBusiness() || r.ReconciliationRequired
}
