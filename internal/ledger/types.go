package ledger

import (
	"context"
	"strconv"

	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// JSON-RPC method names exposed by the ledger node.
const (
	methodQueryEvents      = "suix_queryEvents"
	methodGetTransaction   = "sui_getTransactionBlock"
	methodGetCoinMetadata  = "suix_getCoinMetadata"
	methodLatestCheckpoint = "sui_getLatestCheckpointSequenceNumber"
)

// EventID identifies an event within its emitting transaction.
type EventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq string `json:"eventSeq"`
}

// Event is one raw ledger event as returned by queryEvents.
type Event struct {
	ID          EventID                `json:"id"`
	Sender      string                 `json:"sender"`
	Type        string                 `json:"type"`
	ParsedJSON  map[string]interface{} `json:"parsedJson"`
	TimestampMs string                 `json:"timestampMs"`
}

// Timestamp returns the event timestamp in milliseconds, 0 when absent.
func (e *Event) Timestamp() int64 {
	ts, err := strconv.ParseInt(e.TimestampMs, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// SubIndex returns the event sequence within its transaction, 0 when absent.
func (e *Event) SubIndex() int {
	n, err := strconv.Atoi(e.ID.EventSeq)
	if err != nil {
		return 0
	}
	return n
}

// ContractCall is one smart-contract invocation inside a transaction.
type ContractCall struct {
	Package  string `json:"package"`
	Module   string `json:"module"`
	Function string `json:"function"`
}

// Transaction is the call structure of a ledger transaction. Transactions
// whose instruction list contains no contract calls are pure asset transfers.
type Transaction struct {
	Digest       string         `json:"digest"`
	Calls        []ContractCall `json:"calls"`
	Instructions int            `json:"instructions"`
}

// CoinMetadata carries the registered metadata for a coin type.
type CoinMetadata struct {
	Decimals int    `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

// eventsPage is the paginated queryEvents response envelope.
type eventsPage struct {
	Data        []Event  `json:"data"`
	NextCursor  *EventID `json:"nextCursor,omitempty"`
	HasNextPage bool     `json:"hasNextPage"`
}

// txEnvelope is the transaction response envelope; only the programmable
// instruction list is of interest.
type txEnvelope struct {
	Digest      string `json:"digest"`
	Transaction struct {
		Data struct {
			Transaction struct {
				Kind         string                   `json:"kind"`
				Transactions []map[string]interface{} `json:"transactions"`
			} `json:"transaction"`
		} `json:"data"`
	} `json:"transaction"`
}

// QueryEvents returns up to limit events of the given type, newest-first when
// descending is set.
func (c *RPCClient) QueryEvents(ctx context.Context, eventType string, limit int, descending bool) ([]Event, error) {
	query := map[string]interface{}{
		"MoveEventType": eventType,
	}

	var page eventsPage
	if err := c.call(ctx, &page, methodQueryEvents, query, nil, limit, descending); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// GetTransaction fetches a transaction's call structure by digest.
func (c *RPCClient) GetTransaction(ctx context.Context, digest string) (*Transaction, error) {
	options := map[string]interface{}{
		"showInput": true,
	}

	var envelope txEnvelope
	if err := c.call(ctx, &envelope, methodGetTransaction, digest, options); err != nil {
		return nil, err
	}

	tx := &Transaction{
		Digest:       envelope.Digest,
		Instructions: len(envelope.Transaction.Data.Transaction.Transactions),
	}

	// Each instruction is a single-key object; only MoveCall entries are
	// contract invocations, everything else moves assets around.
	for _, instruction := range envelope.Transaction.Data.Transaction.Transactions {
		raw, ok := instruction["MoveCall"]
		if !ok {
			continue
		}
		fields, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		call := ContractCall{}
		if pkg, ok := fields["package"].(string); ok {
			call.Package = pkg
		}
		if module, ok := fields["module"].(string); ok {
			call.Module = module
		}
		if function, ok := fields["function"].(string); ok {
			call.Function = function
		}
		tx.Calls = append(tx.Calls, call)
	}

	return tx, nil
}

// GetCoinMetadata fetches decimals and naming for a coin type.
func (c *RPCClient) GetCoinMetadata(ctx context.Context, coinType string) (*CoinMetadata, error) {
	var metadata CoinMetadata
	if err := c.call(ctx, &metadata, methodGetCoinMetadata, coinType); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// LatestCheckpoint returns the ledger's current checkpoint sequence number.
func (c *RPCClient) LatestCheckpoint(ctx context.Context) (uint64, error) {
	var checkpoint string
	if err := c.call(ctx, &checkpoint, methodLatestCheckpoint); err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(checkpoint, 10, 64)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeLedger, "Malformed checkpoint number", err.Error())
	}
	return n, nil
}
