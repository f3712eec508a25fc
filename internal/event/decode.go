package event

import (
	"encoding/json"
	"fmt"
)

// DecodePayload turns a stored envelope payload back into its typed
// event. Used during replay; the eventType string is the one persisted
// alongside the payload (EventType.String()).
func DecodePayload(eventType string, payload []byte) (Event, error) {
	switch eventType {
	case "Deposit":
		var evt Deposit
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("decode deposit: %w", err)
		}
		return &evt, nil
	case "Withdraw":
		var evt Withdraw
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("decode withdraw: %w", err)
		}
		return &evt, nil
	case "Credit":
		var evt Credit
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("decode credit: %w", err)
		}
		return &evt, nil
	case "Debit":
		var evt Debit
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("decode debit: %w", err)
		}
		return &evt, nil
	case "ServerAuthorized":
		var evt ServerAuthorized
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("decode server authorized: %w", err)
		}
		return &evt, nil
	case "ServerRevoked":
		var evt ServerRevoked
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("decode server revoked: %w", err)
		}
		return &evt, nil
	case "OwnershipTransferred":
		var evt OwnershipTransferred
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("decode ownership transferred: %w", err)
		}
		return &evt, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}
