package relaydb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
)

// outPointRecord is the serialized form of an OutPoint.
type outPointRecord struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Amount int64  `json:"amount_sat"`
}

// forwardRecord is the serialized form of a Forward.
type forwardRecord struct {
	outPointRecord

	SubAddress  string `json:"sub_address"`
	ForwardTxID string `json:"forward_txid"`
}

// cycleRecord is the serialized form of a Cycle.
type cycleRecord struct {
	ID              string           `json:"id"`
	TimeUnixNano    int64            `json:"time"`
	Outcome         uint8            `json:"outcome"`
	Partner         string           `json:"partner,omitempty"`
	PartnerBalance  int64            `json:"partner_balance_sat"`
	EscrowEncrypted string           `json:"escrow,omitempty"`
	Forwarded       []forwardRecord  `json:"forwarded"`
	Returned        []outPointRecord `json:"returned"`
	Error           string           `json:"error,omitempty"`
}

func serializeOutPoint(o OutPoint) outPointRecord {
	return outPointRecord{
		TxID:   o.TxID.String(),
		Vout:   o.Vout,
		Amount: int64(o.Amount),
	}
}

func deserializeOutPoint(r outPointRecord) (OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(r.TxID)
	if err != nil {
		return OutPoint{}, fmt.Errorf("invalid txid %v: %w", r.TxID, err)
	}

	return OutPoint{
		TxID:   *hash,
		Vout:   r.Vout,
		Amount: btcutil.Amount(r.Amount),
	}, nil
}

// serializeCycle encodes a cycle for storage.
func serializeCycle(cycle *Cycle) ([]byte, error) {
	record := cycleRecord{
		ID:              cycle.ID.String(),
		TimeUnixNano:    cycle.Time.UnixNano(),
		Outcome:         uint8(cycle.Outcome),
		Partner:         cycle.Partner,
		PartnerBalance:  int64(cycle.PartnerBalance),
		EscrowEncrypted: cycle.EscrowEncrypted,
		Forwarded:       make([]forwardRecord, 0, len(cycle.Forwarded)),
		Returned:        make([]outPointRecord, 0, len(cycle.Returned)),
		Error:           cycle.Error,
	}

	for _, f := range cycle.Forwarded {
		record.Forwarded = append(record.Forwarded, forwardRecord{
			outPointRecord: serializeOutPoint(f.OutPoint),
			SubAddress:     f.SubAddress,
			ForwardTxID:    f.ForwardTxID,
		})
	}

	for _, o := range cycle.Returned {
		record.Returned = append(record.Returned, serializeOutPoint(o))
	}

	return json.Marshal(record)
}

// deserializeCycle decodes a stored cycle.
func deserializeCycle(data []byte) (*Cycle, error) {
	var record cycleRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(record.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid cycle id %v: %w", record.ID, err)
	}

	cycle := &Cycle{
		ID:              id,
		Time:            time.Unix(0, record.TimeUnixNano).UTC(),
		Outcome:         CycleOutcome(record.Outcome),
		Partner:         record.Partner,
		PartnerBalance:  btcutil.Amount(record.PartnerBalance),
		EscrowEncrypted: record.EscrowEncrypted,
		Error:           record.Error,
	}

	for _, r := range record.Forwarded {
		o, err := deserializeOutPoint(r.outPointRecord)
		if err != nil {
			return nil, err
		}

		cycle.Forwarded = append(cycle.Forwarded, Forward{
			OutPoint:    o,
			SubAddress:  r.SubAddress,
			ForwardTxID: r.ForwardTxID,
		})
	}

	for _, r := range record.Returned {
		o, err := deserializeOutPoint(r)
		if err != nil {
			return nil, err
		}

		cycle.Returned = append(cycle.Returned, o)
	}

	return cycle, nil
}
