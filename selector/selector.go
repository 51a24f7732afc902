package selector

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/subrelay/encryption"
	"github.com/lightninglabs/subrelay/eventlog"
	"github.com/lightninglabs/subrelay/keys"
	"github.com/lightninglabs/subrelay/wallet"
)

const (
	// ServerTypeOutgoing is the role a partner must report.
	ServerTypeOutgoing = "OUTGOING"

	// ResponseSuccess is the status of a successful response.
	ResponseSuccess = "SUCCESS"

	// testAddress and testAmount fill the synthetic payload used to check
	// a candidate's public key.
	testAddress = "NWMZ2atWCbUnVDKgmPHeTbGLmMUXZxZ3J3"
	testAmount  = "9999.99999999"
)

// Event codes written by the selector.
const (
	CodeInvalidOptions     eventlog.Code = "SEL_001"
	CodeNoRemoteServers    eventlog.Code = "SEL_002"
	CodeQueryFailed        eventlog.Code = "SEL_004"
	CodeFailureResponse    eventlog.Code = "SEL_005"
	CodeNonJSONResponse    eventlog.Code = "SEL_005A"
	CodeIncorrectParams    eventlog.Code = "SEL_006"
	CodeWrongServerType    eventlog.Code = "SEL_007"
	CodeTestEncryptFailed  eventlog.Code = "SEL_008"
	CodeBadPublicKey       eventlog.Code = "SEL_009"
	CodeNoAddresses        eventlog.Code = "SEL_010"
	CodeInvalidAddresses   eventlog.Code = "SEL_011"
	CodeLocalKeysMissing   eventlog.Code = "SEL_012"
	CodeLocalRoundTripDiff eventlog.Code = "SEL_013"
	CodeLocalKeyFailed     eventlog.Code = "SEL_014"
)

var (
	// ErrInvalidOptions is returned when the selector is misconfigured.
	ErrInvalidOptions = errors.New("invalid options provided to selector")

	// ErrNoRemoteServers is returned when no candidates are configured.
	ErrNoRemoteServers = errors.New("no remote servers detected")
)

// HandshakeResponse is the reply of a candidate to the check-node request.
type HandshakeResponse struct {
	Type string         `json:"type"`
	Data *HandshakeData `json:"data"`
}

// HandshakeData is the candidate's self-reported capability snapshot.
type HandshakeData struct {
	ServerType   string   `json:"server_type"`
	NavAddresses []string `json:"nav_addresses"`
	NavBalance   *float64 `json:"nav_balance"`
	PublicKey    string   `json:"public_key"`
}

// Config holds the collaborators and settings of a selector.
type Config struct {
	// Cluster is the configured list of candidates. The selector never
	// modifies it.
	Cluster []Candidate

	// Secret is embedded into the synthetic payload used to test a
	// candidate's public key.
	Secret string

	// ExpectedCiphertextLen is the base64 ciphertext length a valid
	// outgoing key produces.
	ExpectedCiphertextLen int

	// Wallet validates the addresses reported by candidates.
	Wallet wallet.Client

	// Keys supplies the process's own key pair.
	Keys keys.Custodian

	// Transport reaches the candidates.
	Transport Transport

	// EventLog receives one entry per rejected candidate.
	EventLog eventlog.Writer

	// Intn picks a random index in [0, n). Defaults to math/rand.
	Intn func(n int) int
}

// Outcome is the terminal result of a selection run.
type Outcome struct {
	// Node is the chosen partner, nil if none was found.
	Node *Candidate

	// NavBalance is the balance reported by the partner. It bounds the
	// size of the outputs that can be swapped.
	NavBalance btcutil.Amount

	// PublicKey is the partner's public key.
	PublicKey *encryption.PublicKey

	// EscrowEncrypted is the partner's address list encrypted under the
	// process's own public key.
	EscrowEncrypted string

	// ReturnAllToSenders is set when no partner is available and
	// everything held must be returned upstream unprocessed.
	ReturnAllToSenders bool
}

// Selected returns true if a partner was chosen.
func (o *Outcome) Selected() bool {
	return o.Node != nil && !o.ReturnAllToSenders
}

// Selector picks and validates one partner from a cluster of candidates.
type Selector struct {
	cfg *Config
}

// New creates a selector.
func New(cfg *Config) *Selector {
	return &Selector{cfg: cfg}
}

// rejection describes why a candidate was eliminated.
type rejection struct {
	code   eventlog.Code
	msg    string
	fields eventlog.Fields
}

// Select runs the candidate elimination loop over a private copy of the
// cluster. Candidates are tried in random order, one at a time, and removed
// on their first failed check. If the cluster is exhausted, an outcome with
// ReturnAllToSenders set is returned. An error is only returned for an
// invalid configuration or a cancelled context.
func (s *Selector) Select(ctx context.Context) (*Outcome, error) {
	eventLog := s.cfg.EventLog
	if eventLog == nil {
		eventLog = eventlog.Discard
	}

	if s.cfg.Secret == "" || s.cfg.Wallet == nil || s.cfg.Keys == nil ||
		s.cfg.Transport == nil || s.cfg.ExpectedCiphertextLen <= 0 {

		eventLog.WriteLog(CodeInvalidOptions, "invalid options",
			eventlog.Fields{
				"required": "secret, wallet, keys, " +
					"transport, expected ciphertext length",
			})

		return nil, ErrInvalidOptions
	}

	if len(s.cfg.Cluster) == 0 {
		eventLog.WriteLog(
			CodeNoRemoteServers, "no remote servers detected", nil,
		)

		return nil, ErrNoRemoteServers
	}

	intn := s.cfg.Intn
	if intn == nil {
		intn = rand.Intn
	}

	cluster := make([]Candidate, len(s.cfg.Cluster))
	copy(cluster, s.cfg.Cluster)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Exhaustion is an expected terminal state, not an error.
		if len(cluster) == 0 {
			log.Infof("No valid outgoing server found among %d "+
				"candidates", len(s.cfg.Cluster))

			return &Outcome{ReturnAllToSenders: true}, nil
		}

		index := intn(len(cluster))
		candidate := cluster[index]

		outcome, reject := s.testCandidate(ctx, candidate)
		if reject == nil {
			log.Infof("Selected outgoing server %v with balance %v",
				candidate, outcome.NavBalance)

			return outcome, nil
		}

		if reject.fields == nil {
			reject.fields = eventlog.Fields{}
		}
		reject.fields["outgoingAddress"] = candidate.String()
		eventLog.WriteLog(reject.code, reject.msg, reject.fields)

		cluster = append(cluster[:index], cluster[index+1:]...)
	}
}

// testCandidate runs the handshake and every check against one candidate.
func (s *Selector) testCandidate(ctx context.Context,
	candidate Candidate) (*Outcome, *rejection) {

	body, err := s.cfg.Transport.CheckNode(ctx, candidate)
	if err != nil {
		return nil, &rejection{
			code: CodeQueryFailed,
			msg:  "failed to query outgoing server",
			fields: eventlog.Fields{
				"error": err,
			},
		}
	}

	var resp HandshakeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &rejection{
			code: CodeNonJSONResponse,
			msg:  "outgoing server returned non json response",
			fields: eventlog.Fields{
				"body": string(body),
			},
		}
	}

	if resp.Type != ResponseSuccess {
		return nil, &rejection{
			code: CodeFailureResponse,
			msg:  "outgoing server returned failure",
			fields: eventlog.Fields{
				"type": resp.Type,
			},
		}
	}

	data := resp.Data
	if data == nil || data.NavAddresses == nil ||
		data.NavBalance == nil || *data.NavBalance <= 0 ||
		data.PublicKey == "" {

		return nil, &rejection{
			code: CodeIncorrectParams,
			msg:  "outgoing server returned incorrect params",
			fields: eventlog.Fields{
				"body": string(body),
			},
		}
	}

	navBalance, err := btcutil.NewAmount(*data.NavBalance)
	if err != nil {
		return nil, &rejection{
			code: CodeIncorrectParams,
			msg:  "outgoing server returned incorrect params",
			fields: eventlog.Fields{
				"error": err,
			},
		}
	}

	if data.ServerType != ServerTypeOutgoing {
		return nil, &rejection{
			code: CodeWrongServerType,
			msg:  "outgoing server is of the wrong type",
			fields: eventlog.Fields{
				"serverType": data.ServerType,
			},
		}
	}

	pubKey, reject := s.checkPublicKey(data.PublicKey)
	if reject != nil {
		return nil, reject
	}

	if len(data.NavAddresses) < 1 {
		return nil, &rejection{
			code: CodeNoAddresses,
			msg: "outgoing server did not provide at least 1 " +
				"address",
		}
	}

	valid, err := wallet.ValidateAddresses(
		ctx, s.cfg.Wallet, data.NavAddresses,
	)
	if err != nil || !valid {
		return nil, &rejection{
			code: CodeInvalidAddresses,
			msg:  "invalid nav addresses sent from the outgoing server",
			fields: eventlog.Fields{
				"addresses": data.NavAddresses,
				"error":     err,
			},
		}
	}

	escrow, reject := s.escrowAddresses(ctx, data.NavAddresses)
	if reject != nil {
		return nil, reject
	}

	chosen := candidate

	return &Outcome{
		Node:            &chosen,
		NavBalance:      navBalance,
		PublicKey:       pubKey,
		EscrowEncrypted: escrow,
	}, nil
}

// testPayload is the synthetic payload encrypted under a candidate's key.
type testPayload struct {
	Address string `json:"a"`
	Amount  string `json:"n"`
	Secret  string `json:"s"`
}

// checkPublicKey parses the candidate's key and asserts that it produces a
// ciphertext of the expected length.
func (s *Selector) checkPublicKey(material string) (*encryption.PublicKey,
	*rejection) {

	pubKey, err := encryption.ParsePublicKey([]byte(material))
	if err != nil {
		return nil, &rejection{
			code: CodeBadPublicKey,
			msg:  "bad public key provided by outgoing server",
			fields: eventlog.Fields{
				"error": err,
			},
		}
	}

	payload, err := json.Marshal(testPayload{
		Address: testAddress,
		Amount:  testAmount,
		Secret:  s.cfg.Secret,
	})
	if err != nil {
		return nil, &rejection{
			code: CodeTestEncryptFailed,
			msg:  "failed to encrypt test data",
			fields: eventlog.Fields{
				"error": err,
			},
		}
	}

	encrypted, err := pubKey.Encrypt(payload)
	if err != nil || len(encrypted) != s.cfg.ExpectedCiphertextLen {
		return nil, &rejection{
			code: CodeTestEncryptFailed,
			msg:  "failed to encrypt test data",
			fields: eventlog.Fields{
				"length":   len(encrypted),
				"expected": s.cfg.ExpectedCiphertextLen,
				"error":    err,
			},
		}
	}

	return pubKey, nil
}

// escrowAddresses encrypts the address list under the process's own public
// key and asserts that the local private key recovers it exactly.
func (s *Selector) escrowAddresses(ctx context.Context,
	addresses []string) (string, *rejection) {

	files, err := s.cfg.Keys.GetEncryptionKeys(ctx)
	if err != nil || files == nil || files.PrivKeyFile == "" ||
		files.PubKeyFile == "" {

		return "", &rejection{
			code: CodeLocalKeysMissing,
			msg:  "failed to get the current keys",
			fields: eventlog.Fields{
				"error": err,
			},
		}
	}

	plaintext, err := json.Marshal(addresses)
	if err != nil {
		return "", &rejection{
			code: CodeLocalKeyFailed,
			msg:  "failed to use local key",
			fields: eventlog.Fields{
				"error": err,
			},
		}
	}

	priv, pub, err := keys.LoadPair(files)
	if err != nil {
		return "", &rejection{
			code: CodeLocalKeyFailed,
			msg:  "failed to use local key",
			fields: eventlog.Fields{
				"error": err,
			},
		}
	}

	encrypted, err := pub.Encrypt(plaintext)
	if err != nil {
		return "", &rejection{
			code: CodeLocalKeyFailed,
			msg:  "failed to use local key",
			fields: eventlog.Fields{
				"error": err,
			},
		}
	}

	decrypted, err := priv.Decrypt(encrypted)
	if err != nil {
		return "", &rejection{
			code: CodeLocalKeyFailed,
			msg:  "failed to use local key",
			fields: eventlog.Fields{
				"error": err,
			},
		}
	}

	if string(decrypted) != string(plaintext) {
		return "", &rejection{
			code: CodeLocalRoundTripDiff,
			msg:  "failed to encrypt with local key",
			fields: eventlog.Fields{
				"encrypted": encrypted,
			},
		}
	}

	return encrypted, nil
}
