package model

import (
	"sort"
)

// Failure kinds used in result markers.
const (
	KindNetwork      = "network"
	KindDecode       = "decode"
	KindContractCall = "contract_call"
	KindTimeout      = "timeout"
	KindCancelled    = "cancelled"
	KindInternal     = "internal"
)

// ItemFailure marks one log or approval that could not be turned into an ExposureRecord.
type ItemFailure struct {
	Kind          string `json:"kind"`
	TokenContract string `json:"token_contract,omitempty"`
	BlockNumber   uint64 `json:"block_number"`
	LogIndex      uint   `json:"log_index"`
	TxHash        string `json:"tx_hash,omitempty"`
	Error         string `json:"error"`
}

// ScanError marks an owner that could not be scanned at all.
type ScanError struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// OwnerResult holds the outcome for one owner. A nil Error with empty
// Exposures means the owner never granted an approval.
type OwnerResult struct {
	Owner     string           `json:"owner"`
	Exposures []ExposureRecord `json:"exposures"`
	Failures  []ItemFailure    `json:"failures"`
	Error     *ScanError       `json:"error,omitempty"`
}

// Failed reports whether the owner carries a scan-level marker.
func (r OwnerResult) Failed() bool {
	return r.Error != nil
}

// ScanResult maps checksummed owner addresses to their results.
type ScanResult map[string]OwnerResult

// Owners returns the result keys in lexical order.
func (r ScanResult) Owners() []string {
	owners := make([]string, 0, len(r))
	for owner := range r {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// NewOwnerFailure builds a result carrying only a scan-level marker.
func NewOwnerFailure(owner string, err error) OwnerResult {
	return OwnerResult{
		Owner:     owner,
		Exposures: []ExposureRecord{},
		Failures:  []ItemFailure{},
		Error:     &ScanError{Kind: FailureKind(err), Error: err.Error()},
	}
}
