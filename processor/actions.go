package processor

import (
	"context"
	"errors"
	"strings"

	"github.com/lightninglabs/subrelay/eventlog"
	"github.com/lightninglabs/subrelay/fsm"
)

var (
	// errEmptyDestination is returned when the decrypted destination is
	// blank.
	errEmptyDestination = errors.New("decrypted destination is empty")
)

// fail writes the failure event of the transaction and returns OnFailed.
func (f *TxFSM) fail(code eventlog.Code, msg string,
	fields eventlog.Fields) fsm.EventType {

	if fields == nil {
		fields = eventlog.Fields{}
	}
	fields["txid"] = f.tx.TxID.String()
	fields["vout"] = f.tx.Vout
	fields["amount"] = f.tx.Amount

	f.cfg.eventLog().WriteLog(code, msg, fields)

	return OnFailed
}

// DecryptAction decrypts the destination carried by the transaction with the
// local private key.
func (f *TxFSM) DecryptAction(_ context.Context,
	_ fsm.EventContext) fsm.EventType {

	plaintext, err := f.cfg.LocalKey.Decrypt(f.tx.AnonDestination)
	if err == nil && strings.TrimSpace(string(plaintext)) == "" {
		err = errEmptyDestination
	}
	if err != nil {
		return f.fail(
			CodeDecryptFailed, "unable to decrypt destination",
			eventlog.Fields{"error": err},
		)
	}

	f.destination = strings.TrimSpace(string(plaintext))

	return OnDecrypted
}

// ValidateAction asks the parent wallet whether the destination is a valid
// address.
func (f *TxFSM) ValidateAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	info, err := f.cfg.ParentWallet.ValidateAddress(ctx, f.destination)
	if err != nil {
		return f.fail(
			CodeValidateFailed, "unable to validate destination",
			eventlog.Fields{
				"destination": f.destination,
				"error":       err,
			},
		)
	}

	if info == nil || !info.IsValid {
		return f.fail(
			CodeInvalidDestination, "destination address is invalid",
			eventlog.Fields{"destination": f.destination},
		)
	}

	return OnValidated
}

// ReEncryptAction encrypts the destination under the partner key. Attempts
// beyond the configured ceiling fail regardless of the ciphertext.
func (f *TxFSM) ReEncryptAction(_ context.Context,
	_ fsm.EventContext) fsm.EventType {

	if f.attempt > f.cfg.MaxReEncryptAttempts {
		return f.fail(
			CodeReEncryptExhausted,
			"unable to re-encrypt destination",
			eventlog.Fields{"attempt": f.attempt},
		)
	}

	attempt := f.attempt
	f.attempt++

	ciphertext, err := f.partnerKey.Encrypt([]byte(f.destination))
	if err != nil {
		f.Debugf("Re-encryption attempt %d failed: %v", attempt, err)

		return OnRetry
	}

	if len(ciphertext) != f.cfg.ExpectedCiphertextLen {
		f.Debugf("Re-encryption attempt %d produced %d chars, "+
			"expected %d", attempt, len(ciphertext),
			f.cfg.ExpectedCiphertextLen)

		return OnRetry
	}

	f.attachment = ciphertext

	return OnReEncrypted
}

// SendAction forwards the transaction amount to an outstanding partner sub
// address with the re-encrypted destination attached.
func (f *TxFSM) SendAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	subAddress, err := f.claimAddress(ctx)
	if err != nil {
		return f.fail(
			CodeNoSubAddress, "no sub address left to send to",
			eventlog.Fields{"error": err},
		)
	}
	f.subAddress = subAddress

	txid, err := f.cfg.SubWallet.SendToAddress(
		ctx, subAddress, f.tx.Amount, f.attachment,
	)
	if err != nil {
		return f.fail(
			CodeSendFailed, "unable to send to sub address",
			eventlog.Fields{"subAddress": subAddress, "error": err},
		)
	}

	if txid == "" {
		return f.fail(
			CodeSendRejected, "wallet did not send to sub address",
			eventlog.Fields{"subAddress": subAddress},
		)
	}
	f.txid = txid

	f.Infof("Forwarded %v to %v in %v", f.tx.Amount, subAddress, txid)

	return OnSent
}
