package network

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ordfsorg/libinscribe-go/tx"
)

// OrdClient queries an ord-style indexer over HTTP for per-output
// inscription data. The pipeline uses it to flag inscription-bearing UTXOs
// before selection; the node alone cannot tell them apart.
type OrdClient struct {
	baseURL string
	client  *http.Client
}

// NewOrdClient creates a client for an ord server at baseURL, e.g.
// "http://localhost:80".
func NewOrdClient(baseURL string) *OrdClient {
	return &OrdClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// outputResponse maps the fields of ord's /output endpoint the pipeline
// needs.
type outputResponse struct {
	Inscriptions []string `json:"inscriptions"`
	Runes        []string `json:"runes"`
}

// OutputInscriptions returns the inscription ids sitting on the given
// outpoint ("txid:vout"), empty when the output is clean.
func (c *OrdClient) OutputInscriptions(ctx context.Context, outpoint string) ([]string, error) {
	url := fmt.Sprintf("%s/output/%s", c.baseURL, outpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("network: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: output %s", ErrTxNotFound, outpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ord HTTP %d", ErrInvalidResponse, resp.StatusCode)
	}

	var out outputResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode ord response: %w", ErrInvalidResponse, err)
	}
	return out.Inscriptions, nil
}

// HasInscription reports whether the outpoint carries at least one
// inscription.
func (c *OrdClient) HasInscription(ctx context.Context, outpoint string) (bool, error) {
	ids, err := c.OutputInscriptions(ctx, outpoint)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// SnapshotUnspent assembles a selection-ready UTXO snapshot for address:
// the node's unspent set with each output's inscription flag resolved
// through ord. A nil ord client marks every output clean, which is only
// safe on wallets that have never received inscriptions.
func SnapshotUnspent(ctx context.Context, svc BlockchainService, ord *OrdClient, address string) ([]*tx.UTXO, error) {
	unspent, err := svc.ListUnspent(ctx, address)
	if err != nil {
		return nil, err
	}

	snapshot := make([]*tx.UTXO, 0, len(unspent))
	for _, u := range unspent {
		script, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			return nil, fmt.Errorf("%w: scriptPubKey for %s:%d: %v",
				ErrInvalidResponse, u.TxID, u.Vout, err)
		}
		out := &tx.UTXO{
			TxID:         u.TxID,
			Vout:         u.Vout,
			Value:        u.Value,
			ScriptPubKey: script,
		}
		if ord != nil {
			inscribed, err := ord.HasInscription(ctx, out.Outpoint())
			if err != nil {
				return nil, err
			}
			out.HasInscription = inscribed
		}
		snapshot = append(snapshot, out)
	}
	return snapshot, nil
}
