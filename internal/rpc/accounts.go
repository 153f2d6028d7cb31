package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingResponse indicates the node omitted a response for one of the
// requests in a batch.
var ErrMissingResponse = errors.New("no response for request in batch")

// AccountInfo is the decoded state of a single account.
type AccountInfo struct {
	Data       []byte // Raw account data (base64-decoded)
	Owner      string // Owning program address
	Lamports   uint64
	Executable bool
	RentEpoch  uint64
}

// AccountEntry is the per-address outcome within a sub-batch. A nil Account
// with a nil Err means the account does not exist at the sub-batch's slot.
// Err is set when the account's payload failed to decode; the entry then
// carries no usable state and must be skipped, not treated as absent.
type AccountEntry struct {
	Account *AccountInfo
	Err     error
}

// BatchResult holds the outcome of one getMultipleAccounts sub-batch.
// Entries is index-aligned with the requested addresses. Err is set when the
// whole sub-batch failed; Entries is nil in that case.
type BatchResult struct {
	Slot    uint64
	Entries []AccountEntry
	Err     error
}

// multipleAccountsResult is the wire format of a getMultipleAccounts result.
type multipleAccountsResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value []*accountValue `json:"value"`
}

// accountValue is the wire format of a single account entry.
type accountValue struct {
	Data       []string `json:"data"` // [payload, encoding]
	Owner      string   `json:"owner"`
	Lamports   uint64   `json:"lamports"`
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

// GetMultipleAccountsBatch fetches account state for several sub-batches of
// addresses in a single HTTP round trip. Each sub-batch becomes one
// getMultipleAccounts request inside a JSON-RPC batch array; all addresses
// in a sub-batch are read atomically as of that sub-batch's slot.
//
// The returned slice is index-aligned with subBatches. A sub-batch that
// failed has Err set and contributes no account data; other sub-batches in
// the same batch are unaffected. The error return covers failures of the
// whole round trip only.
func (c *Client) GetMultipleAccountsBatch(ctx context.Context, subBatches [][]string, commitment string) ([]BatchResult, error) {
	if len(subBatches) == 0 {
		return nil, nil
	}

	reqs := make([]rpcRequest, len(subBatches))
	for i, addrs := range subBatches {
		reqs[i] = rpcRequest{
			JSONRPC: "2.0",
			ID:      i + 1,
			Method:  "getMultipleAccounts",
			Params: []any{
				addrs,
				map[string]string{
					"encoding":   "base64",
					"commitment": commitment,
				},
			},
		}
	}

	byID, err := c.postBatch(ctx, reqs)
	if err != nil {
		return nil, err
	}

	results := make([]BatchResult, len(subBatches))
	for i, addrs := range subBatches {
		resp, ok := byID[i+1]
		if !ok {
			results[i] = BatchResult{Err: ErrMissingResponse}
			continue
		}
		if resp.Error != nil {
			results[i] = BatchResult{Err: resp.Error}
			continue
		}

		var parsed multipleAccountsResult
		if err := json.Unmarshal(resp.Result, &parsed); err != nil {
			results[i] = BatchResult{Err: fmt.Errorf("unmarshal result: %w", err)}
			continue
		}

		entries := make([]AccountEntry, len(addrs))
		for j, v := range parsed.Value {
			if j >= len(addrs) {
				break
			}
			if v == nil {
				continue // account does not exist at this slot
			}
			info, err := v.decode()
			if err != nil {
				// A malformed account must not poison the rest of the
				// sub-batch; it is simply not observed this cycle.
				c.logger.Warn("failed to decode account data",
					"address", addrs[j],
					"err", err,
				)
				entries[j] = AccountEntry{Err: err}
				continue
			}
			entries[j] = AccountEntry{Account: info}
		}

		results[i] = BatchResult{
			Slot:    parsed.Context.Slot,
			Entries: entries,
		}
	}

	return results, nil
}

// decode converts the wire account entry into an AccountInfo.
func (v *accountValue) decode() (*AccountInfo, error) {
	if len(v.Data) < 1 {
		return nil, errors.New("missing data field")
	}
	if len(v.Data) >= 2 && v.Data[1] != "base64" {
		return nil, fmt.Errorf("unexpected encoding %q", v.Data[1])
	}

	data, err := base64.StdEncoding.DecodeString(v.Data[0])
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}

	return &AccountInfo{
		Data:       data,
		Owner:      v.Owner,
		Lamports:   v.Lamports,
		Executable: v.Executable,
		RentEpoch:  v.RentEpoch,
	}, nil
}
