package selector

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/lightninglabs/subrelay/eventlog"
	"github.com/lightninglabs/subrelay/wallet"
)

// Event codes written while retrieving subchain addresses.
const (
	CodeSubAddrQueryFailed eventlog.Code = "RSA_001"
	CodeSubAddrNonJSON     eventlog.Code = "RSA_002"
	CodeSubAddrBadResponse eventlog.Code = "RSA_003"
	CodeSubAddrInvalid     eventlog.Code = "RSA_004"
)

// ErrSubAddresses is returned when the partner did not hand out usable
// subchain addresses.
var ErrSubAddresses = errors.New("failed to retrieve subchain addresses")

// subAddressResponse is the partner's reply to an address request.
type subAddressResponse struct {
	Type string `json:"type"`
	Data *struct {
		SubAddresses []string `json:"sub_addresses"`
	} `json:"data"`
}

// RetrieveSubAddresses asks the chosen partner for n subchain addresses and
// validates them against the subchain wallet. Every failure writes one event
// and returns ErrSubAddresses.
func (s *Selector) RetrieveSubAddresses(ctx context.Context, node Candidate,
	n int, subWallet wallet.Client) ([]string, error) {

	eventLog := s.cfg.EventLog
	if eventLog == nil {
		eventLog = eventlog.Discard
	}

	fail := func(code eventlog.Code, msg string, fields eventlog.Fields) (
		[]string, error) {

		if fields == nil {
			fields = eventlog.Fields{}
		}
		fields["outgoingAddress"] = node.String()
		eventLog.WriteLog(code, msg, fields)

		return nil, ErrSubAddresses
	}

	body, err := s.cfg.Transport.GetSubAddresses(ctx, node, n)
	if err != nil {
		return fail(
			CodeSubAddrQueryFailed, "failed to query outgoing server",
			eventlog.Fields{"error": err},
		)
	}

	var resp subAddressResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fail(
			CodeSubAddrNonJSON,
			"outgoing server returned non json response",
			eventlog.Fields{"body": string(body)},
		)
	}

	if resp.Type != ResponseSuccess || resp.Data == nil ||
		len(resp.Data.SubAddresses) < 1 ||
		len(resp.Data.SubAddresses) > n ||
		hasDuplicates(resp.Data.SubAddresses) {

		return fail(
			CodeSubAddrBadResponse,
			"outgoing server returned incorrect sub addresses",
			eventlog.Fields{"body": string(body)},
		)
	}

	valid, err := wallet.ValidateAddresses(
		ctx, subWallet, resp.Data.SubAddresses,
	)
	if err != nil || !valid {
		return fail(
			CodeSubAddrInvalid,
			"invalid sub addresses sent from the outgoing server",
			eventlog.Fields{
				"addresses": resp.Data.SubAddresses,
				"error":     err,
			},
		)
	}

	log.Debugf("Retrieved %d sub addresses from %v",
		len(resp.Data.SubAddresses), node)

	return resp.Data.SubAddresses, nil
}

// hasDuplicates reports whether an address occurs more than once.
func hasDuplicates(addresses []string) bool {
	seen := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		if _, ok := seen[addr]; ok {
			return true
		}
		seen[addr] = struct{}{}
	}

	return false
}
