package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"churchledger/internal/core"
)

// RoutingRecordApproved is the routing key of approval events.
const RoutingRecordApproved = "record.approved"

// RecordApprovedMessage announces that a service record reached approved.
// The worker reloads the record by ID; the totals are informational.
type RecordApprovedMessage struct {
	RecordID   string    `json:"recordId"`
	ServiceID  string    `json:"serviceId"`
	BranchID   string    `json:"branchId"`
	Version    int64     `json:"version"`
	GrandTotal int64     `json:"grandTotal"`
	ApprovedBy string    `json:"approvedBy"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewRecordApprovedMessage(rec *core.ServiceRecord) *RecordApprovedMessage {
	return &RecordApprovedMessage{
		RecordID:   rec.ID,
		ServiceID:  rec.ServiceID,
		BranchID:   rec.BranchID,
		Version:    rec.Version,
		GrandTotal: rec.Ledger.GrandTotal(),
		ApprovedBy: rec.ApprovedBy,
		Timestamp:  time.Now(),
	}
}

func (m *RecordApprovedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecordApprovedMessageFromJSON(data []byte) (*RecordApprovedMessage, error) {
	var msg RecordApprovedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.RecordID == "" {
		return nil, fmt.Errorf("message has no record id")
	}
	return &msg, nil
}
